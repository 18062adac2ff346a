package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"piper-console/pkg/api"
	"piper-console/pkg/csvcheck"
	"piper-console/pkg/dataset"
	"piper-console/pkg/history"
	"piper-console/pkg/session"
)

type action int

const (
	actTrain action = iota
	actExport
	actRemoteStart
	actRemoteStop
	actRemoteDownload
	actTranscribe
	actTextFile
)

func (a action) String() string {
	switch a {
	case actTrain:
		return "start training"
	case actExport:
		return "export"
	case actRemoteStart:
		return "start monitoring"
	case actRemoteStop:
		return "stop monitoring"
	case actRemoteDownload:
		return "download model"
	case actTranscribe:
		return "start transcription"
	case actTextFile:
		return "upload text file"
	}
	return "request"
}

type eventMsg session.Event
type animTickMsg struct{ ts time.Time }
type bannerExpireMsg struct{ seq int }

type trainingPolledMsg struct {
	status *api.TrainingStatus
	err    error
}

type modelsMsg struct {
	models []api.Model
	err    error
}

type datasetsMsg struct {
	datasets []api.Dataset
	err      error
}

type enginesMsg struct {
	engines *api.Engines
	err     error
}

type actionMsg struct {
	action action
	ack    *api.Ack
	err    error
}

type probeMsg struct {
	status *api.TrainingStatus
	err    error
}

// checkMsg is the local pre-check of an upload: metadata validation, clip
// count and metadata fingerprint.
type checkMsg struct {
	check       *csvcheck.Result
	audio       []string
	fingerprint string
	previous    *history.Entry
	err         error
}

type uploadMsg struct {
	model       string
	result      *api.UploadResult
	check       *csvcheck.Result
	fingerprint string
	err         error
}

type testVoiceMsg struct {
	result *api.TestVoiceResult
	err    error
}

type downloadMsg struct {
	path        string
	size        int64
	fingerprint string
	err         error
}

type historyMsg struct {
	entries []history.Entry
	err     error
}

type csvLoadedMsg struct {
	path     string
	content  string
	template bool
	err      error
}

type csvSavedMsg struct {
	path   string
	result *api.UploadResult
	err    error
}

type recordedMsg struct{ err error }

func waitEventCmd(ch <-chan session.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

func animTickCmd() tea.Cmd {
	return tea.Tick(time.Second/30, func(ts time.Time) tea.Msg { return animTickMsg{ts: ts} })
}

func bannerExpireCmd(d time.Duration, seq int) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return bannerExpireMsg{seq: seq} })
}

// pollTrainingCmd asks for one training snapshot outside the monitor's timer.
func pollTrainingCmd(ctx context.Context, s *session.Training) tea.Cmd {
	return func() tea.Msg {
		st, err := s.Poll(ctx)
		return trainingPolledMsg{status: st, err: err}
	}
}

func loadModelsCmd(ctx context.Context, c *api.Client) tea.Cmd {
	return func() tea.Msg {
		ms, err := c.Models(ctx)
		return modelsMsg{models: ms, err: err}
	}
}

func loadDatasetsCmd(ctx context.Context, c *api.Client) tea.Cmd {
	return func() tea.Msg {
		ds, err := c.TrainingDatasets(ctx)
		return datasetsMsg{datasets: ds, err: err}
	}
}

func loadEnginesCmd(ctx context.Context, c *api.Client) tea.Cmd {
	return func() tea.Msg {
		e, err := c.TranscriptionEngines(ctx)
		return enginesMsg{engines: e, err: err}
	}
}

func loadHistoryCmd(ctx context.Context, store *history.Store) tea.Cmd {
	if store == nil {
		return nil
	}
	return func() tea.Msg {
		es, err := store.Recent(ctx, 100)
		return historyMsg{entries: es, err: err}
	}
}

func recordCmd(ctx context.Context, store *history.Store, e history.Entry) tea.Cmd {
	if store == nil {
		return nil
	}
	return func() tea.Msg {
		_, err := store.Record(ctx, e)
		return recordedMsg{err: err}
	}
}

// probeTrainingCmd asks once whether a run is already going, so the console
// can resume monitoring after a restart.
func probeTrainingCmd(ctx context.Context, c *api.Client) tea.Cmd {
	return func() tea.Msg {
		st, err := c.TrainingStatus(ctx)
		return probeMsg{status: st, err: err}
	}
}

func ackCmd(a action, call func() (*api.Ack, error)) tea.Cmd {
	return func() tea.Msg {
		ack, err := call()
		return actionMsg{action: a, ack: ack, err: err}
	}
}

func precheck(audioDir, metadata string) (checkMsg, error) {
	var out checkMsg
	if audioDir != "" {
		files, err := dataset.AudioFiles(audioDir)
		if err != nil {
			return out, err
		}
		out.audio = files
	}
	if metadata != "" {
		f, err := os.Open(metadata)
		if err != nil {
			return out, fmt.Errorf("open metadata: %w", err)
		}
		defer f.Close()
		res, err := csvcheck.ValidateReader(f)
		if err != nil {
			return out, err
		}
		out.check = &res
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return out, fmt.Errorf("rewind metadata: %w", err)
		}
		if out.fingerprint, err = dataset.Fingerprint(f); err != nil {
			return out, err
		}
	}
	if len(out.audio) == 0 && metadata == "" {
		return out, errors.New("no audio files or metadata to upload")
	}
	return out, nil
}

func checkUploadCmd(ctx context.Context, store *history.Store, audioDir, metadata string) tea.Cmd {
	return func() tea.Msg {
		out, err := precheck(audioDir, metadata)
		if err != nil {
			out.err = err
			return out
		}
		if store != nil && out.fingerprint != "" {
			if prev, err := store.FindFingerprint(ctx, out.fingerprint); err == nil {
				out.previous = &prev
			}
		}
		return out
	}
}

// uploadCmd validates the metadata locally and refuses to send it when it
// has errors.
func uploadCmd(ctx context.Context, c *api.Client, modelName, audioDir, metadata string) tea.Cmd {
	return func() tea.Msg {
		pre, err := precheck(audioDir, metadata)
		msg := uploadMsg{model: modelName, check: pre.check, fingerprint: pre.fingerprint}
		if err != nil {
			msg.err = err
			return msg
		}
		if pre.check != nil {
			if err := pre.check.Err(); err != nil {
				msg.err = err
				return msg
			}
		}
		msg.result, msg.err = c.Upload(ctx, api.UploadRequest{ModelName: modelName, AudioFiles: pre.audio, MetadataFile: metadata})
		return msg
	}
}

func testVoiceCmd(ctx context.Context, c *api.Client, req api.TestVoiceRequest) tea.Cmd {
	return func() tea.Msg {
		res, err := c.TestVoice(ctx, req)
		return testVoiceMsg{result: res, err: err}
	}
}

// downloadPackageCmd saves an exported package into dir.
func downloadPackageCmd(ctx context.Context, c *api.Client, packageURL, dir string) tea.Cmd {
	return func() tea.Msg {
		body, _, err := c.OpenPackage(ctx, packageURL)
		if err != nil {
			return downloadMsg{err: err}
		}
		defer body.Close()
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return downloadMsg{err: fmt.Errorf("create download dir: %w", err)}
		}
		name := path.Base(strings.SplitN(packageURL, "?", 2)[0])
		if name == "" || name == "." || name == "/" {
			name = fmt.Sprintf("package_%d.zip", time.Now().Unix())
		}
		dst := filepath.Join(dir, name)
		out, err := os.Create(dst)
		if err != nil {
			return downloadMsg{err: fmt.Errorf("create %s: %w", dst, err)}
		}
		n, err := io.Copy(out, body)
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return downloadMsg{err: fmt.Errorf("save package: %w", err)}
		}
		fp, err := dataset.FingerprintFile(dst)
		return downloadMsg{path: dst, size: n, fingerprint: fp, err: err}
	}
}

func csvTemplate(model string) string {
	return fmt.Sprintf("%[1]s_001|First example sentence for the voice.\n%[1]s_002|Second example sentence.\n%[1]s_003|Third line to show the format.\n", model)
}

// loadCSVCmd reads the local metadata.csv of a dataset, or a template when
// the dataset has none yet.
func loadCSVCmd(dir, model string) tea.Cmd {
	return func() tea.Msg {
		p := filepath.Join(dir, dataset.MetadataFile)
		b, err := os.ReadFile(p)
		if errors.Is(err, os.ErrNotExist) {
			return csvLoadedMsg{path: p, content: csvTemplate(model), template: true}
		}
		if err != nil {
			return csvLoadedMsg{path: p, err: fmt.Errorf("read %s: %w", p, err)}
		}
		return csvLoadedMsg{path: p, content: string(b)}
	}
}

// saveCSVCmd writes content to dir/metadata.csv and uploads it as the
// dataset's metadata file. Callers validate first.
func saveCSVCmd(ctx context.Context, c *api.Client, dir, model, content string) tea.Cmd {
	return func() tea.Msg {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return csvSavedMsg{err: fmt.Errorf("create %s: %w", dir, err)}
		}
		p := filepath.Join(dir, dataset.MetadataFile)
		if !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			return csvSavedMsg{err: fmt.Errorf("write %s: %w", p, err)}
		}
		res, err := c.Upload(ctx, api.UploadRequest{ModelName: model, MetadataFile: p})
		return csvSavedMsg{path: p, result: res, err: err}
	}
}
