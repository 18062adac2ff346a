package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"piper-console/pkg/api"
	"piper-console/pkg/config"
	"piper-console/pkg/devserver"
	"piper-console/pkg/history"
	"piper-console/pkg/session"
)

type testApp struct {
	*app
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newTestApp(t *testing.T) testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	srv, err := devserver.New(devserver.Options{DataDir: t.TempDir(), StepDelay: time.Millisecond})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Router())

	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()
	store, err := history.Open(cfg.HistoryPath())
	require.NoError(t, err)
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
		store.Close()
	})

	ta := testApp{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	ta.app = &app{
		cfg:       cfg,
		client:    api.New(ts.URL, 5*time.Second),
		store:     store,
		intervals: session.Intervals{Training: 10 * time.Millisecond, Export: 10 * time.Millisecond, Remote: 10 * time.Millisecond, Transcription: 10 * time.Millisecond},
		out:       ta.stdout,
		errOut:    ta.stderr,
	}
	return ta
}

func (ta testApp) run(t *testing.T, args ...string) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ta.stdout.Reset()
	return run(ctx, ta.app, args)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestRunUsage(t *testing.T) {
	ta := newTestApp(t)
	assert.ErrorIs(t, ta.run(t), errUsage)
	assert.ErrorIs(t, ta.run(t, "bogus"), errUsage)
	require.NoError(t, ta.run(t, "help"))
	assert.Contains(t, ta.stdout.String(), "validate-csv")
	assert.ErrorIs(t, ta.run(t, "train"), errUsage)
	assert.ErrorIs(t, ta.run(t, "train", "--model", "v", "--quality", "ultra"), errUsage)
	assert.ErrorIs(t, ta.run(t, "status", "bogus"), errUsage)
	assert.ErrorIs(t, ta.run(t, "remote", "download"), errUsage)
}

func TestValidateCSV(t *testing.T) {
	ta := newTestApp(t)
	dir := t.TempDir()

	require.NoError(t, ta.run(t, "validate-csv", writeFile(t, dir, "ok.csv", "001|hello\n002|spk|world\n")))
	assert.Contains(t, ta.stdout.String(), "2 entries found")

	err := ta.run(t, "validate-csv", writeFile(t, dir, "bad.csv", "001|hello\n002| \n"))
	assert.EqualError(t, err, "metadata invalid: line 2: text must not be empty")
}

func TestInspect(t *testing.T) {
	ta := newTestApp(t)
	dir := t.TempDir()
	writeFile(t, dir, "wav/001.wav", "RIFF")
	writeFile(t, dir, "metadata.csv", "001|one\n002|two\n")

	require.NoError(t, ta.run(t, "inspect", dir))
	assert.Contains(t, ta.stdout.String(), "clips")
	assert.Contains(t, ta.stderr.String(), "1 metadata ids without a clip: 002")

	empty := t.TempDir()
	assert.EqualError(t, ta.run(t, "inspect", empty), "metadata.csv not found")
}

func TestUploadTrainAndList(t *testing.T) {
	ta := newTestApp(t)
	dir := t.TempDir()
	writeFile(t, dir, "001.wav", "RIFF")
	writeFile(t, dir, "002.wav", "RIFF")
	meta := writeFile(t, dir, "metadata.csv", "001|one\n002|two\n")

	require.NoError(t, ta.run(t, "upload", "--model", "voice", "--audio", dir, "--metadata", meta))
	require.NoError(t, ta.run(t, "upload", "--model", "voice", "--metadata", meta))
	assert.Contains(t, ta.stderr.String(), "same metadata already uploaded to voice")

	require.NoError(t, ta.run(t, "train", "--model", "voice", "--quality", "low", "--wait"))
	assert.Contains(t, ta.stderr.String(), "model voice trained")

	require.NoError(t, ta.run(t, "models"))
	assert.Regexp(t, `voice\s+true\s+true\s+true`, ta.stdout.String())

	require.NoError(t, ta.run(t, "datasets"))
	assert.Regexp(t, `voice\s+2\s+true`, ta.stdout.String())

	require.NoError(t, ta.run(t, "test-voice", "--model", "voice"))
	assert.Contains(t, ta.stdout.String(), "/static/audio/")

	require.NoError(t, ta.run(t, "history", "--kind", "training"))
	assert.Contains(t, ta.stdout.String(), "completed")
}

func TestTrainingFailureIsReported(t *testing.T) {
	ta := newTestApp(t)
	meta := writeFile(t, t.TempDir(), "metadata.csv", "001|one\n")
	require.NoError(t, ta.run(t, "upload", "--model", "mute", "--metadata", meta))

	err := ta.run(t, "train", "--model", "mute", "--wait")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "training failed: ERROR:")
}

func TestExportAndDownload(t *testing.T) {
	ta := newTestApp(t)
	dir := t.TempDir()
	writeFile(t, dir, "001.wav", "RIFF")
	require.NoError(t, ta.run(t, "upload", "--model", "voice", "--audio", dir))

	out := t.TempDir()
	require.NoError(t, ta.run(t, "export", "--dataset", "voice", "--platform", "kaggle", "--download", "--dir", out))
	assert.Contains(t, ta.stdout.String(), "#kaggle_notebook")
	assert.FileExists(t, filepath.Join(out, "voice_kaggle.zip"))
	assert.Contains(t, ta.stderr.String(), "downloading voice_kaggle.zip", "download progress follows the app's error writer")

	entries, err := ta.store.RecentKind(context.Background(), history.KindPackage, 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Len(t, entries[0].Fingerprint, 64)

	require.NoError(t, ta.run(t, "status", "export"))
	var st api.CloudStatus
	require.NoError(t, json.Unmarshal(ta.stdout.Bytes(), &st))
	assert.Equal(t, 100, st.Progress)
}

func TestTranscribeAndTextFile(t *testing.T) {
	ta := newTestApp(t)
	dir := t.TempDir()
	writeFile(t, dir, "a.wav", "RIFF")
	require.NoError(t, ta.run(t, "upload", "--model", "tx", "--audio", dir))

	assert.ErrorIs(t, ta.run(t, "transcribe", "--model", "tx", "--engine", "nope"), errUsage)
	require.NoError(t, ta.run(t, "transcribe", "--model", "tx", "--wait"))
	assert.Contains(t, ta.stdout.String(), "a|")

	require.NoError(t, ta.run(t, "text-file", "--model", "tx", "--file", writeFile(t, dir, "lines.txt", "spoken line\n")))
	assert.Contains(t, ta.stderr.String(), "CSV generated from the text file")
}

func TestRemoteCommands(t *testing.T) {
	ta := newTestApp(t)

	require.NoError(t, ta.run(t, "remote", "status"))
	assert.Contains(t, ta.stdout.String(), "monitoring inactive")

	require.NoError(t, ta.run(t, "remote", "start", "--session-id", "s-1", "--notebook", "https://nb"))
	require.NoError(t, ta.run(t, "remote", "status"))
	assert.Contains(t, ta.stdout.String(), "s-1 (colab)")
	assert.Contains(t, ta.stdout.String(), "remaining")

	require.NoError(t, ta.run(t, "remote", "stop"))
}

func TestHistoryWithoutStore(t *testing.T) {
	ta := newTestApp(t)
	ta.store = nil
	err := ta.run(t, "history")
	require.Error(t, err)
	assert.False(t, errors.Is(err, errUsage))
}
