// Package devserver is a local stand-in for the Piper training server. It
// serves the same endpoints with the same payloads and simulates the long
// running jobs (training, cloud export, remote monitoring, transcription) on
// a fixed step delay, so the console can be driven without GPUs.
package devserver

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"piper-console/pkg/api"
)

const (
	trainingDir = "training_data"
	modelsDir   = "trained_models"
	exportsDir  = "cloud_exports"
	audioOutDir = "static/audio"

	maxUploadBytes = 500 << 20
)

var defaultEngines = []string{"whisper", "google", "wav2vec2", "vosk"}

type Options struct {
	DataDir string
	// StepDelay paces every simulated job step.
	StepDelay time.Duration
	// EpochDuration is how long one simulated remote epoch takes.
	EpochDuration time.Duration
	Engines       []string
	Logger        *log.Logger
}

type remoteState struct {
	active  bool
	session api.RemoteSession
	started time.Time
}

type Server struct {
	opts   Options
	logger *log.Logger
	http   *http.Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	training      api.TrainingStatus
	cloud         api.CloudStatus
	remote        remoteState
	transcription api.TranscriptionStatus
	now           func() time.Time
}

func New(opts Options) (*Server, error) {
	if opts.DataDir == "" {
		return nil, fmt.Errorf("devserver: data dir is required")
	}
	if opts.StepDelay <= 0 {
		opts.StepDelay = time.Second
	}
	if opts.EpochDuration <= 0 {
		opts.EpochDuration = time.Second
	}
	if opts.Engines == nil {
		opts.Engines = append([]string(nil), defaultEngines...)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	for _, d := range []string{trainingDir, modelsDir, exportsDir, audioOutDir} {
		if err := os.MkdirAll(filepath.Join(opts.DataDir, d), 0o755); err != nil {
			return nil, fmt.Errorf("devserver: create %s: %w", d, err)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		opts:   opts,
		logger: logger,
		http:   &http.Client{Timeout: 5 * time.Minute},
		ctx:    ctx,
		cancel: cancel,
		training: api.TrainingStatus{
			Log: []string{},
		},
		transcription: api.TranscriptionStatus{
			Errors:  []string{},
			Results: []api.TranscriptionResult{},
		},
		now: time.Now,
	}, nil
}

// Router builds the gin engine serving every endpoint.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLog())
	r.MaxMultipartMemory = 32 << 20

	r.GET("/", s.handleRoot)
	r.POST("/upload", s.handleUpload)
	r.POST("/start_training", s.handleStartTraining)
	r.GET("/training_status", s.handleTrainingStatus)
	r.GET("/models", s.handleModels)
	r.POST("/test_voice", s.handleTestVoice)
	r.GET("/training_datasets", s.handleTrainingDatasets)
	r.POST("/export_cloud", s.handleExportCloud)
	r.GET("/cloud_status", s.handleCloudStatus)
	r.GET("/download_package/:name", s.handleDownloadPackage)
	r.POST("/start_remote_monitoring", s.handleStartRemote)
	r.POST("/stop_remote_monitoring", s.handleStopRemote)
	r.GET("/remote_status", s.handleRemoteStatus)
	r.POST("/download_trained_model", s.handleDownloadTrainedModel)
	r.GET("/transcription_engines", s.handleTranscriptionEngines)
	r.POST("/start_transcription", s.handleStartTranscription)
	r.GET("/transcription_status", s.handleTranscriptionStatus)
	r.POST("/upload_text_file", s.handleUploadTextFile)
	r.Static("/static/audio", filepath.Join(s.opts.DataDir, audioOutDir))
	return r
}

// Close stops the simulated jobs and waits for them to exit.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until every background job has finished on its own.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Printf("%s %s -> %d (%s) id=%s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond), c.GetHeader(api.RequestIDHeader))
	}
}

// spawn runs a job in the background, tracked for Close and Wait.
func (s *Server) spawn(job func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		job()
	}()
}

// pause waits one step; false means the server is shutting down.
func (s *Server) pause() bool {
	t := time.NewTimer(s.opts.StepDelay)
	defer t.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *Server) path(parts ...string) string {
	return filepath.Join(append([]string{s.opts.DataDir}, parts...)...)
}

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func writeOK(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, api.Ack{Success: true, Message: msg})
}
