package devserver

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"piper-console/pkg/api"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	s, err := New(Options{DataDir: t.TempDir(), StepDelay: time.Millisecond, EpochDuration: time.Second})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, s.Router()
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

// seedDataset lays out training_data/<name> with wav files and metadata.csv.
func seedDataset(t *testing.T, s *Server, name string, wavs ...string) string {
	t.Helper()
	dir := s.path(trainingDir, name)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "wav"), 0o755))
	rows := []string{}
	for _, w := range wavs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "wav", w), []byte("RIFF"), 0o644))
		rows = append(rows, strings.TrimSuffix(w, filepath.Ext(w))+"|hello")
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata.csv"), []byte(strings.Join(rows, "\n")), 0o644))
	return dir
}

func TestReadEndpoints(t *testing.T) {
	_, h := newTestServer(t)

	tests := []struct {
		name string
		path string
	}{
		{"root", "/"},
		{"training_status", "/training_status"},
		{"models", "/models"},
		{"training_datasets", "/training_datasets"},
		{"cloud_status", "/cloud_status"},
		{"remote_status", "/remote_status"},
		{"transcription_engines", "/transcription_engines"},
		{"transcription_status", "/transcription_status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(h, http.MethodGet, tt.path, "")
			assert.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
		})
	}
}

func TestCommandValidation(t *testing.T) {
	_, h := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		errMsg string
	}{
		{"training_without_name", "/start_training", `{}`, http.StatusBadRequest, "model name is required"},
		{"training_unknown_dir", "/start_training", `{"model_name":"ghost"}`, http.StatusBadRequest, "model directory not found"},
		{"training_bad_json", "/start_training", `{`, http.StatusBadRequest, "invalid request body"},
		{"test_voice_missing_model", "/test_voice", `{"model_name":"ghost"}`, http.StatusBadRequest, "ONNX model not found"},
		{"export_without_dataset", "/export_cloud", `{"platform":"colab"}`, http.StatusBadRequest, "dataset name is required"},
		{"export_unknown_dataset", "/export_cloud", `{"dataset_name":"ghost"}`, http.StatusBadRequest, "dataset not found"},
		{"download_missing_fields", "/download_trained_model", `{"model_name":"x"}`, http.StatusBadRequest, "model URL and model name are required"},
		{"transcription_without_audio", "/start_transcription", `{"model_name":"ghost"}`, http.StatusBadRequest, "audio directory not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(h, http.MethodPost, tt.path, tt.body)
			require.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.errMsg, decode[map[string]string](t, w)["error"])
		})
	}

	t.Run("package_not_found", func(t *testing.T) {
		w := serve(h, http.MethodGet, "/download_package/nothing.zip", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestUploadStoresFiles(t *testing.T) {
	s, h := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("model_name", "my voice"))
	for _, name := range []string{"a.wav", "b.wav", "notes.exe"} {
		part, err := mw.CreateFormFile("audio_files", name)
		require.NoError(t, err)
		_, _ = part.Write([]byte("data"))
	}
	part, err := mw.CreateFormFile("metadata_file", "meta.csv")
	require.NoError(t, err)
	_, _ = part.Write([]byte("a|hello\nb|world\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	res := decode[api.UploadResult](t, w)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"a.wav", "b.wav"}, res.AudioFiles)
	assert.FileExists(t, s.path(trainingDir, "my_voice", "metadata.csv"))
	assert.FileExists(t, s.path(trainingDir, "my_voice", "wav", "b.wav"))

	w = serve(h, http.MethodPost, "/upload", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrainingRunProducesTestableModel(t *testing.T) {
	s, h := newTestServer(t)
	seedDataset(t, s, "voice", "001.wav", "002.wav")

	w := serve(h, http.MethodPost, "/start_training", `{"model_name":"voice","quality":"low","sample_rate":16000}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "training started", decode[api.Ack](t, w).Message)

	w = serve(h, http.MethodPost, "/start_training", `{"model_name":"voice"}`)
	if w.Code == http.StatusBadRequest {
		assert.Equal(t, "a training run is already in progress", decode[map[string]string](t, w)["error"])
	}
	s.Wait()

	st := decode[api.TrainingStatus](t, serve(h, http.MethodGet, "/training_status", ""))
	assert.False(t, st.IsTraining)
	assert.Equal(t, "100", st.Progress.String())
	assert.Equal(t, "training complete", st.CurrentStep)
	assert.Contains(t, st.Log, "[20%] found 2 audio files")
	assert.Contains(t, st.Log, "[90%] training epoch 50/50")

	models := decode[[]api.Model](t, serve(h, http.MethodGet, "/models", ""))
	require.Len(t, models, 1)
	assert.True(t, models[0].Testable())

	w = serve(h, http.MethodPost, "/test_voice", `{"model_name":"voice","text":"hi"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[api.TestVoiceResult](t, w)
	require.True(t, strings.HasPrefix(res.AudioURL, "/static/audio/test_voice_"))

	w = serve(h, http.MethodGet, res.AudioURL, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "RIFF", w.Body.String()[:4])
}

func TestTrainingFailsWithoutAudio(t *testing.T) {
	s, h := newTestServer(t)
	seedDataset(t, s, "empty")

	require.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/start_training", `{"model_name":"empty"}`).Code)
	s.Wait()

	st := decode[api.TrainingStatus](t, serve(h, http.MethodGet, "/training_status", ""))
	assert.False(t, st.IsTraining)
	assert.True(t, st.Progress.IsZero())
	assert.Equal(t, "ERROR: no audio files found", st.CurrentStep)
}

func TestExportBuildsDownloadablePackage(t *testing.T) {
	s, h := newTestServer(t)
	seedDataset(t, s, "voice", "001.wav")

	datasets := decode[[]api.Dataset](t, serve(h, http.MethodGet, "/training_datasets", ""))
	require.Len(t, datasets, 1)
	assert.True(t, datasets[0].HasMetadata)
	assert.Equal(t, 1, datasets[0].AudioCount)

	require.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/export_cloud", `{"dataset_name":"voice","platform":"colab"}`).Code)
	s.Wait()

	st := decode[api.CloudStatus](t, serve(h, http.MethodGet, "/cloud_status", ""))
	assert.False(t, st.IsExporting)
	assert.Equal(t, 100, st.Progress)
	assert.Equal(t, "/download_package/voice_colab.zip", st.PackageURL)
	assert.Equal(t, "https://colab.research.google.com/drive/voice_colab", st.NotebookURL)

	w := serve(h, http.MethodGet, st.PackageURL, "")
	require.Equal(t, http.StatusOK, w.Code)
	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	names := []string{}
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"metadata.csv", "wav/001.wav"}, names)
}

func TestRemoteMonitoringFollowsClock(t *testing.T) {
	s, h := newTestServer(t)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := base
	s.now = func() time.Time { return now }

	st := decode[api.RemoteStatus](t, serve(h, http.MethodGet, "/remote_status", ""))
	assert.False(t, st.Monitoring)
	assert.Equal(t, "monitoring inactive", st.Message)

	require.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/start_remote_monitoring", `{"platform":"colab","notebook_url":"https://nb"}`).Code)

	now = base.Add(50 * time.Second)
	st = decode[api.RemoteStatus](t, serve(h, http.MethodGet, "/remote_status", ""))
	require.True(t, st.Monitoring)
	require.NotNil(t, st.Session)
	assert.NotEmpty(t, st.Session.SessionID)
	assert.Equal(t, "https://nb", st.Session.NotebookURL)
	assert.Equal(t, 50, st.Metrics.EpochsCompleted)
	assert.Equal(t, "150", st.Metrics.TimeRemaining.String())

	now = base.Add(time.Hour)
	st = decode[api.RemoteStatus](t, serve(h, http.MethodGet, "/remote_status", ""))
	assert.Equal(t, remoteEpochs, st.Metrics.EpochsCompleted)

	require.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/stop_remote_monitoring", "").Code)
	st = decode[api.RemoteStatus](t, serve(h, http.MethodGet, "/remote_status", ""))
	assert.False(t, st.Monitoring)
}

func TestTranscriptionWritesMetadata(t *testing.T) {
	s, h := newTestServer(t)
	dir := seedDataset(t, s, "voice", "b.wav", "a.wav")

	engines := decode[api.Engines](t, serve(h, http.MethodGet, "/transcription_engines", ""))
	assert.Equal(t, "whisper", engines.Default)

	require.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/start_transcription", `{"model_name":"voice","engine":"vosk","language":"en"}`).Code)
	s.Wait()

	st := decode[api.TranscriptionStatus](t, serve(h, http.MethodGet, "/transcription_status", ""))
	assert.False(t, st.IsRunning)
	assert.Equal(t, "100", st.Progress.String())
	assert.Equal(t, 2, st.TotalFiles)
	assert.Equal(t, 2, st.CompletedFiles)
	require.Len(t, st.Results, 2)
	assert.Equal(t, "a.wav", st.Results[0].File)

	b, err := os.ReadFile(filepath.Join(dir, "metadata.csv"))
	require.NoError(t, err)
	assert.Equal(t, "a|Sample a transcribed with vosk (en).\nb|Sample b transcribed with vosk (en).\n", string(b))
}

func TestUploadTextFilePairsLinesWithAudio(t *testing.T) {
	s, h := newTestServer(t)
	dir := seedDataset(t, s, "voice", "x1.wav", "x2.wav")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("model_name", "voice"))
	part, err := mw.CreateFormFile("text_file", "script.txt")
	require.NoError(t, err)
	_, _ = part.Write([]byte("first line\n\nsecond line\nthird line\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload_text_file", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	b, err := os.ReadFile(filepath.Join(dir, "metadata.csv"))
	require.NoError(t, err)
	assert.Equal(t, "x1|first line\nx2|second line\n", string(b))
}

func TestSafeName(t *testing.T) {
	tests := map[string]string{
		"voice":            "voice",
		"my voice":         "my_voice",
		"../../etc/passwd": "passwd",
		`..\evil.zip`:      "evil.zip",
		"...":              "",
		"":                 "",
	}
	for in, want := range tests {
		assert.Equal(t, want, safeName(in), "input %q", in)
	}
}

func TestEpochProgressIsFractional(t *testing.T) {
	tests := []struct {
		done, total int
		want        string
	}{
		{0, 100, "40"},
		{37, 100, "58.5"},
		{25, 200, "46.25"},
		{50, 50, "90"},
		{3, 0, "40"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, epochProgress(tt.done, tt.total).String(), "%d/%d", tt.done, tt.total)
	}
}
