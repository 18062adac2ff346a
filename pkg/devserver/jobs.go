package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"piper-console/pkg/api"
)

const remoteEpochs = 200

func (s *Server) updateTraining(step string, progress int) {
	s.setTraining(step, decimal.NewFromInt(int64(progress)))
}

func (s *Server) setTraining(step string, progress decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.training.CurrentStep = step
	s.training.Progress = progress
	s.training.Log = append(s.training.Log, fmt.Sprintf("[%s%%] %s", progress, step))
}

// epochProgress maps completed epochs onto the 40-90 training band.
func epochProgress(done, total int) decimal.Decimal {
	if total <= 0 {
		return decimal.NewFromInt(40)
	}
	return decimal.NewFromInt(int64(done)).
		Div(decimal.NewFromInt(int64(total))).
		Mul(decimal.NewFromInt(50)).
		Add(decimal.NewFromInt(40)).
		Round(2)
}

func (s *Server) failTraining(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.training.CurrentStep = "ERROR: " + err.Error()
	s.training.Progress = decimal.Zero
	s.training.Log = append(s.training.Log, "ERROR: "+err.Error())
}

func (s *Server) runTraining(req api.TrainingRequest, modelDir string) {
	defer func() {
		s.mu.Lock()
		s.training.IsTraining = false
		s.mu.Unlock()
	}()

	s.updateTraining("running dataset preprocessing", 10)
	if !fileExists(filepath.Join(modelDir, "metadata.csv")) {
		s.failTraining(errors.New("metadata.csv not found"))
		return
	}
	wavDir := filepath.Join(modelDir, "wav")
	if !isDir(wavDir) {
		s.failTraining(errors.New("wav/ directory not found"))
		return
	}
	audio := audioFiles(wavDir)
	if len(audio) == 0 {
		s.failTraining(errors.New("no audio files found"))
		return
	}
	s.updateTraining(fmt.Sprintf("found %d audio files", len(audio)), 20)
	if !s.pause() {
		return
	}
	s.updateTraining("preprocessing complete", 30)
	s.updateTraining("starting neural model training", 40)

	epochs := api.QualityEpochs(req.Quality)
	const chunks = 8
	for i := 1; i <= chunks; i++ {
		if !s.pause() {
			return
		}
		done := epochs * i / chunks
		s.setTraining(fmt.Sprintf("training epoch %d/%d", done, epochs), epochProgress(done, epochs))
	}
	if !s.pause() {
		return
	}
	if err := s.writeModel(req, epochs); err != nil {
		s.failTraining(err)
		return
	}
	s.updateTraining("training complete", 100)
}

type voiceConfig struct {
	Audio struct {
		SampleRate int    `json:"sample_rate"`
		Quality    string `json:"quality"`
	} `json:"audio"`
	Espeak struct {
		Voice string `json:"voice"`
	} `json:"espeak"`
	NumSpeakers int `json:"num_speakers"`
	Epochs      int `json:"epochs"`
}

func (s *Server) writeModel(req api.TrainingRequest, epochs int) error {
	dir := s.path(modelsDir, req.ModelName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	var cfg voiceConfig
	cfg.Audio.SampleRate = req.SampleRate
	cfg.Audio.Quality = req.Quality
	cfg.Espeak.Voice = req.Language
	cfg.NumSpeakers = 1
	if !req.SingleSpeaker {
		cfg.NumSpeakers = 2
	}
	cfg.Epochs = epochs
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal model config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, req.ModelName+".onnx.json"), b, 0o644); err != nil {
		return fmt.Errorf("write model config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, req.ModelName+".onnx"), []byte("ONNX"), 0o644); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	return nil
}

func (s *Server) updateCloud(mut func(st *api.CloudStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mut(&s.cloud)
}

func (s *Server) runExport(req api.ExportRequest, datasetDir string) {
	defer s.updateCloud(func(st *api.CloudStatus) { st.IsExporting = false })
	fail := func(err error) {
		s.updateCloud(func(st *api.CloudStatus) {
			st.Step = "Error: " + err.Error()
			st.Progress = 0
		})
	}

	if !s.pause() {
		return
	}
	s.updateCloud(func(st *api.CloudStatus) { st.Step, st.Progress = "creating training package", 30 })
	pkgName := fmt.Sprintf("%s_%s.zip", req.DatasetName, req.Platform)
	if err := zipDir(datasetDir, s.path(exportsDir, pkgName)); err != nil {
		fail(err)
		return
	}
	if !s.pause() {
		return
	}
	s.updateCloud(func(st *api.CloudStatus) { st.Step, st.Progress = "generating access URLs", 70 })
	notebook := "#" + req.Platform + "_notebook"
	if req.Platform == "colab" {
		notebook = "https://colab.research.google.com/drive/" + strings.TrimSuffix(pkgName, ".zip")
	}
	if !s.pause() {
		return
	}
	s.updateCloud(func(st *api.CloudStatus) {
		st.Step = "export complete"
		st.Progress = 100
		st.PackageURL = "/download_package/" + pkgName
		st.NotebookURL = notebook
	})
}

// remoteMetrics fakes a cloud run that finishes after remoteEpochs epochs.
func (s *Server) remoteMetrics(elapsed time.Duration) api.RemoteMetrics {
	epochs := int(elapsed / s.opts.EpochDuration)
	if epochs > remoteEpochs {
		epochs = remoteEpochs
	}
	loss := 2.5*math.Exp(-float64(epochs)/60) + 0.1
	remaining := time.Duration(remoteEpochs-epochs) * s.opts.EpochDuration
	return api.RemoteMetrics{
		CurrentLoss:     decimal.NewFromFloat(loss).Round(4),
		AvgGPUUsage:     decimal.NewFromFloat(72.5 + float64(epochs%10)).Round(1),
		EpochsCompleted: epochs,
		TimeRemaining:   decimal.NewFromFloat(remaining.Seconds()).Round(0),
		MemoryUsage:     decimal.NewFromInt(int64(55 + epochs%15)),
	}
}

func (s *Server) downloadModel(modelURL, name string) error {
	req, err := httpGet(s.ctx, modelURL)
	if err != nil {
		return err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", modelURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("fetch %s: status %d", modelURL, resp.StatusCode)
	}
	tmp, err := os.CreateTemp("", "piper-model-*.zip")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()
	if _, err := tmp.ReadFrom(resp.Body); err != nil {
		return fmt.Errorf("save download: %w", err)
	}
	return unzipTo(tmp.Name(), s.path(modelsDir, name))
}

func (s *Server) runTranscription(req api.TranscriptionRequest, audioDir, outCSV string) {
	defer func() {
		s.mu.Lock()
		s.transcription.IsRunning = false
		s.mu.Unlock()
	}()
	files := audioFiles(audioDir)
	s.mu.Lock()
	s.transcription.TotalFiles = len(files)
	if len(files) == 0 {
		s.transcription.Errors = append(s.transcription.Errors, "no audio files found")
	}
	s.mu.Unlock()
	if len(files) == 0 {
		return
	}

	rows := make([]string, 0, len(files))
	total := decimal.NewFromInt(int64(len(files)))
	for i, f := range files {
		s.mu.Lock()
		s.transcription.CurrentFile = f
		s.transcription.Progress = decimal.NewFromInt(int64(i)).Div(total).Mul(decimal.NewFromInt(100)).Round(1)
		s.mu.Unlock()
		if !s.pause() {
			return
		}
		stem := strings.TrimSuffix(f, filepath.Ext(f))
		text := fmt.Sprintf("Sample %s transcribed with %s (%s).", stem, req.Engine, req.Language)
		rows = append(rows, stem+"|"+text)
		s.mu.Lock()
		s.transcription.Results = append(s.transcription.Results, api.TranscriptionResult{File: f, Text: text, Status: "success"})
		s.transcription.CompletedFiles++
		s.mu.Unlock()
	}
	if err := os.WriteFile(outCSV, []byte(strings.Join(rows, "\n")+"\n"), 0o644); err != nil {
		s.mu.Lock()
		s.transcription.Errors = append(s.transcription.Errors, "write metadata: "+err.Error())
		s.mu.Unlock()
		return
	}
	s.mu.Lock()
	s.transcription.Progress = decimal.NewFromInt(100)
	s.transcription.CurrentFile = ""
	s.mu.Unlock()
}

// writeMetadataFromLines pairs text lines with the sorted audio files and
// writes id|text rows. It returns the number of rows written.
func writeMetadataFromLines(lines []string, audioDir, outCSV string) (int, error) {
	files := audioFiles(audioDir)
	if len(files) == 0 {
		return 0, errors.New("no audio files found")
	}
	n := min(len(lines), len(files))
	rows := make([]string, 0, n)
	for i := 0; i < n; i++ {
		stem := strings.TrimSuffix(files[i], filepath.Ext(files[i]))
		rows = append(rows, stem+"|"+lines[i])
	}
	if err := os.WriteFile(outCSV, []byte(strings.Join(rows, "\n")+"\n"), 0o644); err != nil {
		return 0, fmt.Errorf("write metadata: %w", err)
	}
	return n, nil
}
