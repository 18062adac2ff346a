package devserver

import (
	"bufio"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"piper-console/pkg/api"
)

var allowedUploadExt = map[string]bool{".wav": true, ".mp3": true, ".flac": true, ".csv": true, ".txt": true}

func (s *Server) handleRoot(c *gin.Context) {
	c.String(http.StatusOK, "Piper training dev server is running.\n")
}

func (s *Server) handleUpload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		writeError(c, http.StatusBadRequest, "no files were sent")
		return
	}
	audio := form.File["audio_files"]
	meta := form.File["metadata_file"]
	if len(audio) == 0 && len(meta) == 0 {
		writeError(c, http.StatusBadRequest, "no files were sent")
		return
	}
	modelName := safeName(formValue(form, "model_name"))
	if modelName == "" {
		modelName = "new_model"
	}
	modelDir := s.path(trainingDir, modelName)
	if err := os.MkdirAll(filepath.Join(modelDir, "wav"), 0o755); err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}

	uploaded := []string{}
	for _, fh := range audio {
		name := safeName(fh.Filename)
		if name == "" || !allowedUploadExt[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		if err := c.SaveUploadedFile(fh, filepath.Join(modelDir, "wav", name)); err != nil {
			writeError(c, http.StatusInternalServerError, err.Error())
			return
		}
		uploaded = append(uploaded, name)
	}
	if len(meta) > 0 && allowedUploadExt[strings.ToLower(filepath.Ext(meta[0].Filename))] {
		if err := c.SaveUploadedFile(meta[0], filepath.Join(modelDir, "metadata.csv")); err != nil {
			writeError(c, http.StatusInternalServerError, err.Error())
			return
		}
	}

	c.JSON(http.StatusOK, api.UploadResult{
		Success:    true,
		Message:    fmt.Sprintf("files uploaded for model %s", modelName),
		AudioFiles: uploaded,
		ModelDir:   filepath.Join(trainingDir, modelName),
	})
}

func (s *Server) handleStartTraining(c *gin.Context) {
	req := api.TrainingRequest{Language: "pt-br", Quality: "medium", SampleRate: 22050, SingleSpeaker: true}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	modelName := safeName(req.ModelName)
	if modelName == "" {
		writeError(c, http.StatusBadRequest, "model name is required")
		return
	}
	modelDir := s.path(trainingDir, modelName)
	if !isDir(modelDir) {
		writeError(c, http.StatusBadRequest, "model directory not found")
		return
	}

	s.mu.Lock()
	if s.training.IsTraining {
		s.mu.Unlock()
		writeError(c, http.StatusBadRequest, "a training run is already in progress")
		return
	}
	s.training = api.TrainingStatus{
		IsTraining:  true,
		CurrentStep: "starting preprocessing",
		Log:         []string{},
		ModelName:   modelName,
	}
	s.mu.Unlock()

	req.ModelName = modelName
	s.spawn(func() { s.runTraining(req, modelDir) })
	writeOK(c, "training started")
}

func (s *Server) handleTrainingStatus(c *gin.Context) {
	s.mu.Lock()
	st := s.training
	st.Log = append([]string{}, s.training.Log...)
	s.mu.Unlock()
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleModels(c *gin.Context) {
	out := []api.Model{}
	for _, name := range subdirs(s.path(modelsDir)) {
		dir := s.path(modelsDir, name)
		out = append(out, api.Model{
			Name:    name,
			HasONNX: fileExists(filepath.Join(dir, name+".onnx")),
			HasJSON: fileExists(filepath.Join(dir, name+".onnx.json")),
			Path:    filepath.Join(modelsDir, name),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleTestVoice(c *gin.Context) {
	var req api.TestVoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	name := safeName(req.ModelName)
	if name == "" {
		writeError(c, http.StatusBadRequest, "model name is required")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		req.Text = "This is a test of the trained voice."
	}
	dir := s.path(modelsDir, name)
	if !fileExists(filepath.Join(dir, name+".onnx")) {
		writeError(c, http.StatusBadRequest, "ONNX model not found")
		return
	}
	cfgPath := filepath.Join(dir, name+".onnx.json")
	if !fileExists(cfgPath) {
		writeError(c, http.StatusBadRequest, "model config not found")
		return
	}
	out := fmt.Sprintf("test_%s_%d.wav", name, s.now().Unix())
	samples, err := synthesizeSilence(cfgPath, req.Text, s.path(audioOutDir, out))
	if err != nil {
		writeError(c, http.StatusInternalServerError, "synthesis failed: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, api.TestVoiceResult{
		Success:  true,
		AudioURL: "/static/audio/" + out,
		Message:  fmt.Sprintf("audio generated (%d samples)", samples),
	})
}

func (s *Server) handleTrainingDatasets(c *gin.Context) {
	out := []api.Dataset{}
	for _, name := range subdirs(s.path(trainingDir)) {
		dir := s.path(trainingDir, name)
		size := folderSize(dir)
		out = append(out, api.Dataset{
			Name:        name,
			HasMetadata: fileExists(filepath.Join(dir, "metadata.csv")),
			AudioCount:  len(audioFiles(filepath.Join(dir, "wav"))),
			Path:        filepath.Join(trainingDir, name),
			SizeMB:      decimal.NewFromInt(size).Div(decimal.NewFromInt(1 << 20)).Round(2),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleExportCloud(c *gin.Context) {
	req := api.ExportRequest{Platform: "colab"}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	name := safeName(req.DatasetName)
	if name == "" {
		writeError(c, http.StatusBadRequest, "dataset name is required")
		return
	}
	dir := s.path(trainingDir, name)
	if !isDir(dir) {
		writeError(c, http.StatusBadRequest, "dataset not found")
		return
	}
	if req.Platform == "" {
		req.Platform = "colab"
	}
	s.mu.Lock()
	if s.cloud.IsExporting {
		s.mu.Unlock()
		writeError(c, http.StatusBadRequest, "an export is already in progress")
		return
	}
	s.cloud = api.CloudStatus{IsExporting: true, Platform: req.Platform, Step: "starting export", Progress: 10}
	s.mu.Unlock()

	req.DatasetName = name
	s.spawn(func() { s.runExport(req, dir) })
	writeOK(c, "export started")
}

func (s *Server) handleCloudStatus(c *gin.Context) {
	s.mu.Lock()
	st := s.cloud
	s.mu.Unlock()
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleDownloadPackage(c *gin.Context) {
	name := safeName(c.Param("name"))
	p := s.path(exportsDir, name)
	if name == "" || !fileExists(p) {
		writeError(c, http.StatusNotFound, "package not found")
		return
	}
	c.FileAttachment(p, name)
}

func (s *Server) handleStartRemote(c *gin.Context) {
	req := api.RemoteSession{Platform: "colab"}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Platform == "" {
		req.Platform = "colab"
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	s.mu.Lock()
	s.remote = remoteState{active: true, session: req, started: s.now()}
	s.mu.Unlock()
	writeOK(c, "monitoring started")
}

func (s *Server) handleStopRemote(c *gin.Context) {
	s.mu.Lock()
	s.remote.active = false
	s.mu.Unlock()
	writeOK(c, "monitoring stopped")
}

func (s *Server) handleRemoteStatus(c *gin.Context) {
	s.mu.Lock()
	rs := s.remote
	s.mu.Unlock()
	if !rs.active {
		c.JSON(http.StatusOK, api.RemoteStatus{Monitoring: false, Message: "monitoring inactive"})
		return
	}
	sess := rs.session
	c.JSON(http.StatusOK, api.RemoteStatus{
		Monitoring: true,
		Session:    &sess,
		Metrics:    s.remoteMetrics(s.now().Sub(rs.started)),
	})
}

func (s *Server) handleDownloadTrainedModel(c *gin.Context) {
	var req api.DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	name := safeName(req.ModelName)
	if req.ModelURL == "" || name == "" {
		writeError(c, http.StatusBadRequest, "model URL and model name are required")
		return
	}
	s.spawn(func() {
		if err := s.downloadModel(req.ModelURL, name); err != nil {
			s.logger.Printf("download model %s: %v", name, err)
			return
		}
		s.logger.Printf("model %s downloaded", name)
	})
	writeOK(c, "download started")
}

func (s *Server) handleTranscriptionEngines(c *gin.Context) {
	out := api.Engines{Engines: append([]string{}, s.opts.Engines...)}
	for _, e := range out.Engines {
		if e == "whisper" {
			out.Default = e
		}
	}
	if out.Default == "" && len(out.Engines) > 0 {
		out.Default = out.Engines[0]
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleStartTranscription(c *gin.Context) {
	req := api.TranscriptionRequest{Engine: "whisper", Language: "pt"}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	name := safeName(req.ModelName)
	if name == "" {
		writeError(c, http.StatusBadRequest, "model name is required")
		return
	}
	audioDir := s.path(trainingDir, name, "wav")
	if !isDir(audioDir) {
		writeError(c, http.StatusBadRequest, "audio directory not found")
		return
	}
	s.mu.Lock()
	if s.transcription.IsRunning {
		s.mu.Unlock()
		writeError(c, http.StatusBadRequest, "a transcription is already running")
		return
	}
	s.transcription = api.TranscriptionStatus{IsRunning: true, Errors: []string{}, Results: []api.TranscriptionResult{}}
	s.mu.Unlock()

	s.spawn(func() { s.runTranscription(req, audioDir, s.path(trainingDir, name, "metadata.csv")) })
	writeOK(c, "automatic transcription started")
}

func (s *Server) handleTranscriptionStatus(c *gin.Context) {
	s.mu.Lock()
	st := s.transcription
	st.Errors = append([]string{}, s.transcription.Errors...)
	st.Results = append([]api.TranscriptionResult{}, s.transcription.Results...)
	s.mu.Unlock()
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleUploadTextFile(c *gin.Context) {
	fh, err := c.FormFile("text_file")
	if err != nil {
		writeError(c, http.StatusBadRequest, "no text file was sent")
		return
	}
	name := safeName(c.PostForm("model_name"))
	if name == "" {
		writeError(c, http.StatusBadRequest, "model name is required")
		return
	}
	modelDir := s.path(trainingDir, name)
	lines, err := readTextLines(fh)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	n, err := writeMetadataFromLines(lines, filepath.Join(modelDir, "wav"), filepath.Join(modelDir, "metadata.csv"))
	if err != nil {
		writeError(c, http.StatusInternalServerError, "failed to generate CSV: "+err.Error())
		return
	}
	if n != len(lines) {
		s.logger.Printf("text file for %s: %d lines, %d entries written", name, len(lines), n)
	}
	writeOK(c, "CSV generated from the text file")
}

func readTextLines(fh *multipart.FileHeader) ([]string, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open text file: %w", err)
	}
	defer f.Close()
	out := []string{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if ln := strings.TrimSpace(sc.Text()); ln != "" {
			out = append(out, ln)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read text file: %w", err)
	}
	if len(out) == 0 {
		return nil, errors.New("text file is empty")
	}
	return out, nil
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}
