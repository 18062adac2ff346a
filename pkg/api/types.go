package api

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Ack is the plain {success, message} reply of the command endpoints.
type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type UploadRequest struct {
	ModelName    string
	AudioFiles   []string
	MetadataFile string
}

type UploadResult struct {
	Success    bool     `json:"success"`
	Message    string   `json:"message"`
	AudioFiles []string `json:"audio_files"`
	ModelDir   string   `json:"model_dir"`
}

type TrainingRequest struct {
	ModelName     string `json:"model_name"`
	Language      string `json:"language"`
	Quality       string `json:"quality"`
	SampleRate    int    `json:"sample_rate"`
	SingleSpeaker bool   `json:"single_speaker"`
}

type TrainingStatus struct {
	IsTraining  bool            `json:"is_training"`
	CurrentStep string          `json:"current_step"`
	Progress    decimal.Decimal `json:"progress"`
	Log         []string        `json:"log"`
	ModelName   string          `json:"model_name"`
}

type Model struct {
	Name    string `json:"name"`
	HasONNX bool   `json:"has_onnx"`
	HasJSON bool   `json:"has_json"`
	Path    string `json:"path"`
}

// Testable reports whether the voice can be synthesized: both the onnx
// weights and their json config must exist.
func (m Model) Testable() bool {
	return m.HasONNX && m.HasJSON
}

type TestVoiceRequest struct {
	ModelName string `json:"model_name"`
	Text      string `json:"text"`
}

type TestVoiceResult struct {
	Success  bool   `json:"success"`
	AudioURL string `json:"audio_url"`
	Message  string `json:"message"`
}

type Dataset struct {
	Name        string          `json:"name"`
	HasMetadata bool            `json:"has_metadata"`
	AudioCount  int             `json:"audio_count"`
	Path        string          `json:"path"`
	SizeMB      decimal.Decimal `json:"size_mb"`
}

type ExportRequest struct {
	DatasetName  string `json:"dataset_name"`
	Platform     string `json:"platform"`
	Quality      string `json:"quality"`
	Epochs       int    `json:"epochs"`
	AutoDownload bool   `json:"auto_download"`
}

type CloudStatus struct {
	IsExporting bool   `json:"is_exporting"`
	Platform    string `json:"platform"`
	Progress    int    `json:"progress"`
	Step        string `json:"step"`
	PackageURL  string `json:"package_url"`
	NotebookURL string `json:"notebook_url"`
}

type RemoteSession struct {
	Platform    string `json:"platform"`
	SessionID   string `json:"session_id"`
	NotebookURL string `json:"notebook_url"`
	ModelName   string `json:"model_name"`
}

type RemoteMetrics struct {
	CurrentLoss     decimal.Decimal `json:"current_loss"`
	AvgGPUUsage     decimal.Decimal `json:"avg_gpu_usage"`
	EpochsCompleted int             `json:"epochs_completed"`
	TimeRemaining   decimal.Decimal `json:"time_remaining"`
	MemoryUsage     decimal.Decimal `json:"memory_usage"`
}

type RemoteStatus struct {
	Monitoring bool           `json:"monitoring"`
	Message    string         `json:"message,omitempty"`
	Session    *RemoteSession `json:"session,omitempty"`
	Metrics    RemoteMetrics  `json:"metrics"`
}

type DownloadRequest struct {
	ModelURL  string `json:"model_url"`
	ModelName string `json:"model_name"`
}

// ManualDownloadRequest builds the request the monitor issues when the user
// pulls a finished remote model by hand.
func ManualDownloadRequest(notebookURL string, now time.Time) DownloadRequest {
	return DownloadRequest{
		ModelURL:  notebookURL + "/download",
		ModelName: fmt.Sprintf("remote_model_%d", now.UnixMilli()),
	}
}

type Engines struct {
	Engines []string `json:"engines"`
	Default string   `json:"default"`
}

type TranscriptionRequest struct {
	ModelName string `json:"model_name"`
	Engine    string `json:"engine"`
	Language  string `json:"language"`
}

type TranscriptionResult struct {
	File   string `json:"file"`
	Text   string `json:"text"`
	Status string `json:"status"`
}

type TranscriptionStatus struct {
	IsRunning      bool                  `json:"is_running"`
	Progress       decimal.Decimal       `json:"progress"`
	CurrentFile    string                `json:"current_file"`
	TotalFiles     int                   `json:"total_files"`
	CompletedFiles int                   `json:"completed_files"`
	Errors         []string              `json:"errors"`
	Results        []TranscriptionResult `json:"results"`
}

var engineLabels = map[string]string{
	"whisper":  "Whisper (OpenAI) - Recommended",
	"google":   "Google Speech Recognition",
	"wav2vec2": "Wav2Vec2 (Facebook)",
	"vosk":     "Vosk (Offline)",
}

// EngineLabel returns the display name of a transcription engine.
func EngineLabel(id string) string {
	if l, ok := engineLabels[id]; ok {
		return l
	}
	return id
}

var qualityEpochs = map[string]int{
	"low":    50,
	"medium": 100,
	"high":   200,
}

// QualityEpochs maps a quality preset to its training epochs.
func QualityEpochs(quality string) int {
	if n, ok := qualityEpochs[quality]; ok {
		return n
	}
	return qualityEpochs["medium"]
}

// Qualities lists the presets from fastest to best.
func Qualities() []string {
	return []string{"low", "medium", "high"}
}
