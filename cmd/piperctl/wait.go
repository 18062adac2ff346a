package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"piper-console/pkg/api"
	"piper-console/pkg/dataset"
	"piper-console/pkg/history"
	"piper-console/pkg/session"
)

// tracker describes how to follow one job kind from the command line.
type tracker[T any] struct {
	kind     session.Kind
	every    time.Duration
	fetch    func(context.Context) (T, error)
	judge    func(T) session.Outcome
	progress func(T) (percent int, step string)
	failure  func(T) string
}

func trainingTracker(a *app) tracker[*api.TrainingStatus] {
	return tracker[*api.TrainingStatus]{
		kind:  session.KindTraining,
		every: a.intervals.Training,
		fetch: a.client.TrainingStatus,
		judge: session.TrainingOutcome,
		progress: func(st *api.TrainingStatus) (int, string) {
			return int(st.Progress.IntPart()), st.CurrentStep
		},
		failure: func(st *api.TrainingStatus) string { return nz(st.CurrentStep, "run ended early") },
	}
}

func exportTracker(a *app) tracker[*api.CloudStatus] {
	return tracker[*api.CloudStatus]{
		kind:  session.KindExport,
		every: a.intervals.Export,
		fetch: a.client.CloudStatus,
		judge: session.ExportOutcome,
		progress: func(st *api.CloudStatus) (int, string) {
			return st.Progress, st.Step
		},
		failure: func(st *api.CloudStatus) string { return nz(st.Step, "export ended early") },
	}
}

func remoteTracker(a *app) tracker[*api.RemoteStatus] {
	return tracker[*api.RemoteStatus]{
		kind:  session.KindRemote,
		every: a.intervals.Remote,
		fetch: a.client.RemoteStatus,
		judge: session.RemoteOutcome,
		progress: func(st *api.RemoteStatus) (int, string) {
			if !st.Monitoring {
				return 0, nz(st.Message, "waiting")
			}
			ep := st.Metrics.EpochsCompleted
			return int(session.RemoteProgress(ep).IntPart()), session.RemoteMessage(ep) + " loss " + st.Metrics.CurrentLoss.StringFixed(4)
		},
		failure: func(*api.RemoteStatus) string { return "monitoring ended" },
	}
}

func transcriptionTracker(a *app) tracker[*api.TranscriptionStatus] {
	return tracker[*api.TranscriptionStatus]{
		kind:  session.KindTranscription,
		every: a.intervals.Transcription,
		fetch: a.client.TranscriptionStatus,
		judge: session.TranscriptionOutcome,
		progress: func(st *api.TranscriptionStatus) (int, string) {
			return int(st.Progress.IntPart()), fmt.Sprintf("%d/%d %s", st.CompletedFiles, st.TotalFiles, st.CurrentFile)
		},
		failure: func(st *api.TranscriptionStatus) string {
			if len(st.Errors) > 0 {
				return strings.Join(st.Errors, "; ")
			}
			return "ended before completion"
		},
	}
}

// follow polls with a session until it reaches a terminal state, drawing a
// progress bar on errOut, and journals the outcome.
func follow[T any](ctx context.Context, a *app, tr tracker[T]) (T, error) {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(a.errOut),
		progressbar.OptionSetDescription(string(tr.kind)),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
	)
	done := make(chan session.Event, 1)
	s := session.New(session.Config[T]{
		Kind:     tr.kind,
		Interval: tr.every,
		Fetch:    tr.fetch,
		Judge:    tr.judge,
		Notify: func(ev session.Event) {
			if st, ok := ev.Status.(T); ok {
				p, step := tr.progress(st)
				bar.Describe(fmt.Sprintf("%-13s %s", tr.kind, truncate(step, 48)))
				_ = bar.Set(max(0, min(100, p)))
			}
			if ev.State.Terminal() {
				select {
				case done <- ev:
				default:
				}
			}
		},
	})
	s.Start(ctx)
	defer s.Stop()

	var zero T
	select {
	case <-ctx.Done():
		fmt.Fprintln(a.errOut)
		return zero, ctx.Err()
	case ev := <-done:
		fmt.Fprintln(a.errOut)
		a.record(ctx, history.FromEvent(ev))
		st, _ := s.Latest()
		if ev.State == session.StateFailed {
			return st, fmt.Errorf("%s failed: %s", tr.kind, tr.failure(st))
		}
		return st, nil
	}
}

// download saves an exported package into dir with a byte progress bar and
// returns the saved path.
func (a *app) download(ctx context.Context, packageURL, dir string) (string, error) {
	body, size, err := a.client.OpenPackage(ctx, packageURL)
	if err != nil {
		return "", err
	}
	defer body.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	name := path.Base(strings.SplitN(packageURL, "?", 2)[0])
	if name == "" || name == "." || name == "/" {
		name = fmt.Sprintf("package_%d.zip", time.Now().Unix())
	}
	dst := filepath.Join(dir, name)
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dst, err)
	}

	bar := progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(a.errOut),
		progressbar.OptionSetDescription("downloading "+name),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(10),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
	_, err = io.Copy(io.MultiWriter(out, bar), body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("save package: %w", err)
	}
	_ = bar.Finish()
	fmt.Fprintln(a.errOut)

	fp, err := dataset.FingerprintFile(dst)
	if err != nil {
		return "", err
	}
	info, _ := os.Stat(dst)
	var n int64
	if info != nil {
		n = info.Size()
	}
	a.record(ctx, history.Entry{Kind: history.KindPackage, Ref: dst, State: "downloaded", Detail: fmt.Sprintf("%d bytes", n), Fingerprint: fp})
	a.ok("saved %s (%d bytes, blake3 %s)", dst, n, fp[:16])
	return dst, nil
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n-1]) + "…"
}
