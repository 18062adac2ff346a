package session

import (
	"context"
	"log"
	"time"

	"piper-console/pkg/api"
)

// StatusSource is the subset of the API client the monitors poll.
type StatusSource interface {
	TrainingStatus(ctx context.Context) (*api.TrainingStatus, error)
	CloudStatus(ctx context.Context) (*api.CloudStatus, error)
	RemoteStatus(ctx context.Context) (*api.RemoteStatus, error)
	TranscriptionStatus(ctx context.Context) (*api.TranscriptionStatus, error)
}

// Intervals are the polling periods per monitor.
type Intervals struct {
	Training      time.Duration
	Export        time.Duration
	Remote        time.Duration
	Transcription time.Duration
}

func DefaultIntervals() Intervals {
	return Intervals{
		Training:      2 * time.Second,
		Export:        2 * time.Second,
		Remote:        5 * time.Second,
		Transcription: 2 * time.Second,
	}
}

type (
	Training      = Session[*api.TrainingStatus]
	Export        = Session[*api.CloudStatus]
	Remote        = Session[*api.RemoteStatus]
	Transcription = Session[*api.TranscriptionStatus]
)

// Monitors is the typed state container holding one session per job kind.
type Monitors struct {
	Training      *Training
	Export        *Export
	Remote        *Remote
	Transcription *Transcription
}

func NewMonitors(src StatusSource, iv Intervals, notify Notifier, logger *log.Logger) *Monitors {
	return &Monitors{
		Training: New(Config[*api.TrainingStatus]{
			Kind: KindTraining, Interval: iv.Training, Fetch: src.TrainingStatus,
			Judge: TrainingOutcome, Notify: notify, Logger: logger,
		}),
		Export: New(Config[*api.CloudStatus]{
			Kind: KindExport, Interval: iv.Export, Fetch: src.CloudStatus,
			Judge: ExportOutcome, Notify: notify, Logger: logger,
		}),
		Remote: New(Config[*api.RemoteStatus]{
			Kind: KindRemote, Interval: iv.Remote, Fetch: src.RemoteStatus,
			Judge: RemoteOutcome, Notify: notify, Logger: logger,
		}),
		Transcription: New(Config[*api.TranscriptionStatus]{
			Kind: KindTranscription, Interval: iv.Transcription, Fetch: src.TranscriptionStatus,
			Judge: TranscriptionOutcome, Notify: notify, Logger: logger,
		}),
	}
}

// StopAll cancels every timer.
func (m *Monitors) StopAll() {
	m.Training.Stop()
	m.Export.Stop()
	m.Remote.Stop()
	m.Transcription.Stop()
}

func TrainingOutcome(st *api.TrainingStatus) Outcome {
	switch {
	case st == nil || st.IsTraining:
		return Continue
	case st.Progress.IntPart() >= 100:
		return Complete
	default:
		return Fail
	}
}

// ExportOutcome keeps waiting while the server has not reported any step,
// since the export job may not have picked the request up yet.
func ExportOutcome(st *api.CloudStatus) Outcome {
	switch {
	case st == nil || st.IsExporting:
		return Continue
	case st.Progress >= 100:
		return Complete
	case st.Step != "":
		return Fail
	default:
		return Continue
	}
}

// RemoteOutcome ignores inactive snapshots; the run is done once every
// expected epoch has been reported.
func RemoteOutcome(st *api.RemoteStatus) Outcome {
	if st == nil || !st.Monitoring {
		return Continue
	}
	if st.Metrics.EpochsCompleted >= RemoteEpochs {
		return Complete
	}
	return Continue
}

func TranscriptionOutcome(st *api.TranscriptionStatus) Outcome {
	switch {
	case st == nil || st.IsRunning:
		return Continue
	case st.Progress.IntPart() >= 100:
		return Complete
	default:
		return Fail
	}
}
