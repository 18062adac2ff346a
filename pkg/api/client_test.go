package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"piper-console/pkg/api"
	"piper-console/pkg/devserver"
)

func newDevClient(t *testing.T) (*api.Client, *devserver.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	srv, err := devserver.New(devserver.Options{DataDir: t.TempDir(), StepDelay: time.Millisecond})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return api.New(ts.URL+"/", 5*time.Second), srv
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestClientUploadTrainAndTest(t *testing.T) {
	c, srv := newDevClient(t)
	ctx := context.Background()
	dir := t.TempDir()

	up, err := c.Upload(ctx, api.UploadRequest{
		ModelName:    "demo",
		AudioFiles:   []string{writeFile(t, dir, "001.wav", "RIFF"), writeFile(t, dir, "002.wav", "RIFF")},
		MetadataFile: writeFile(t, dir, "metadata.csv", "001|one\n002|two\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"001.wav", "002.wav"}, up.AudioFiles)

	datasets, err := c.TrainingDatasets(ctx)
	require.NoError(t, err)
	require.Len(t, datasets, 1)
	assert.Equal(t, "demo", datasets[0].Name)

	ack, err := c.StartTraining(ctx, api.TrainingRequest{ModelName: "demo", Language: "en-us", Quality: "low", SampleRate: 22050, SingleSpeaker: true})
	require.NoError(t, err)
	assert.True(t, ack.Success)
	srv.Wait()

	st, err := c.TrainingStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "100", st.Progress.String())

	models, err := c.Models(ctx)
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.True(t, models[0].Testable())

	res, err := c.TestVoice(ctx, api.TestVoiceRequest{ModelName: "demo", Text: "hello"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, c.ResolveURL(res.AudioURL), "/static/audio/")
}

func TestClientSurfacesServerErrors(t *testing.T) {
	c, _ := newDevClient(t)

	_, err := c.StartTraining(context.Background(), api.TrainingRequest{ModelName: "ghost"})
	require.Error(t, err)
	assert.True(t, api.IsStatus(err, http.StatusBadRequest))
	assert.Contains(t, err.Error(), "start training: API error: status=400, message=model directory not found")

	_, _, err = c.OpenPackage(context.Background(), "/download_package/none.zip")
	assert.True(t, api.IsStatus(err, http.StatusNotFound))
}

func TestClientRejectsEmptyUpload(t *testing.T) {
	c := api.New("http://127.0.0.1:1", time.Second)
	_, err := c.Upload(context.Background(), api.UploadRequest{ModelName: "x"})
	assert.EqualError(t, err, "upload: no files to send")
}

func TestClientExportAndDownload(t *testing.T) {
	c, srv := newDevClient(t)
	ctx := context.Background()
	dir := t.TempDir()

	_, err := c.Upload(ctx, api.UploadRequest{ModelName: "pkg", AudioFiles: []string{writeFile(t, dir, "a.wav", "RIFF")}})
	require.NoError(t, err)
	_, err = c.ExportCloud(ctx, api.ExportRequest{DatasetName: "pkg", Platform: "kaggle", Quality: "medium", Epochs: 100})
	require.NoError(t, err)
	srv.Wait()

	st, err := c.CloudStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, 100, st.Progress)
	assert.Equal(t, "#kaggle_notebook", st.NotebookURL)

	body, size, err := c.OpenPackage(ctx, st.PackageURL)
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), size)
	assert.Equal(t, "PK", string(data[:2]))
}

func TestClientTranscriptionFlow(t *testing.T) {
	c, srv := newDevClient(t)
	ctx := context.Background()
	dir := t.TempDir()

	_, err := c.Upload(ctx, api.UploadRequest{ModelName: "tx", AudioFiles: []string{writeFile(t, dir, "a.wav", "RIFF")}})
	require.NoError(t, err)

	engines, err := c.TranscriptionEngines(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"whisper", "google", "wav2vec2", "vosk"}, engines.Engines)

	_, err = c.StartTranscription(ctx, api.TranscriptionRequest{ModelName: "tx", Engine: "whisper", Language: "pt"})
	require.NoError(t, err)
	srv.Wait()

	st, err := c.TranscriptionStatus(ctx)
	require.NoError(t, err)
	assert.True(t, st.Progress.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 1, st.CompletedFiles)

	ack, err := c.UploadTextFile(ctx, "tx", writeFile(t, dir, "script.txt", "spoken line\n"))
	require.NoError(t, err)
	assert.Equal(t, "CSV generated from the text file", ack.Message)
}

func TestClientRemoteMonitoring(t *testing.T) {
	c, _ := newDevClient(t)
	ctx := context.Background()

	st, err := c.RemoteStatus(ctx)
	require.NoError(t, err)
	assert.False(t, st.Monitoring)

	_, err = c.StartRemoteMonitoring(ctx, api.RemoteSession{Platform: "colab", SessionID: "s-1", NotebookURL: "https://nb"})
	require.NoError(t, err)
	st, err = c.RemoteStatus(ctx)
	require.NoError(t, err)
	require.True(t, st.Monitoring)
	assert.Equal(t, "s-1", st.Session.SessionID)

	_, err = c.StopRemoteMonitoring(ctx)
	require.NoError(t, err)
}

func TestClientEnvelopeFailure(t *testing.T) {
	var gotID string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get(api.RequestIDHeader)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "disk full"})
	}))
	defer ts.Close()

	_, err := api.New(ts.URL, time.Second).ExportCloud(context.Background(), api.ExportRequest{DatasetName: "x"})
	require.Error(t, err)
	assert.EqualError(t, err, "export cloud: API error: status=200, message=disk full")
	assert.NotEmpty(t, gotID)
}

func TestClientDecodesNumericDecimals(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"monitoring":true,"metrics":{"current_loss":0.4213,"avg_gpu_usage":"81.5","epochs_completed":12,"time_remaining":3720,"memory_usage":61}}`)
	}))
	defer ts.Close()

	st, err := api.New(ts.URL, time.Second).RemoteStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.4213", st.Metrics.CurrentLoss.String())
	assert.Equal(t, "81.5", st.Metrics.AvgGPUUsage.String())
	assert.Equal(t, 12, st.Metrics.EpochsCompleted)
}

func TestClientDecodesFractionalTrainingProgress(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"is_training":true,"current_step":"epoch 1/100","progress":40.5,"log":[],"model_name":"voice"}`)
	}))
	defer ts.Close()

	st, err := api.New(ts.URL, time.Second).TrainingStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, st.IsTraining)
	assert.Equal(t, "40.5", st.Progress.String())
}

func TestResolveURL(t *testing.T) {
	c := api.New("http://localhost:5000/", time.Second)
	assert.Equal(t, "http://localhost:5000", c.BaseURL())
	assert.Equal(t, "http://localhost:5000/download_package/a.zip", c.ResolveURL("/download_package/a.zip"))
	assert.Equal(t, "http://localhost:5000/static/x.wav", c.ResolveURL("static/x.wav"))
	assert.Equal(t, "https://cdn.example.com/a.zip", c.ResolveURL("https://cdn.example.com/a.zip"))
}

func TestLookups(t *testing.T) {
	assert.Equal(t, "Whisper (OpenAI) - Recommended", api.EngineLabel("whisper"))
	assert.Equal(t, "Vosk (Offline)", api.EngineLabel("vosk"))
	assert.Equal(t, "custom", api.EngineLabel("custom"))

	assert.Equal(t, 50, api.QualityEpochs("low"))
	assert.Equal(t, 100, api.QualityEpochs("medium"))
	assert.Equal(t, 200, api.QualityEpochs("high"))
	assert.Equal(t, 100, api.QualityEpochs("ultra"))

	now := time.UnixMilli(1700000000123)
	req := api.ManualDownloadRequest("https://colab.research.google.com/drive/x", now)
	assert.Equal(t, "https://colab.research.google.com/drive/x/download", req.ModelURL)
	assert.Equal(t, "remote_model_1700000000123", req.ModelName)
}
