// Package api is a typed client for the Piper training server.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

// APIError is a failure reported by the server itself, either through a
// non-2xx status or a success=false body.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return "API error: " + e.Message
	}
	return fmt.Sprintf("API error: status=%d, message=%s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

type Client struct {
	baseURL string
	client  *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

// ResolveURL turns a server-relative path such as /download_package/x.zip
// into an absolute URL. Absolute inputs are returned unchanged.
func (c *Client) ResolveURL(p string) string {
	if u, err := url.Parse(p); err == nil && u.IsAbs() {
		return p
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return c.baseURL + p
}

func (c *Client) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if len(req.AudioFiles) == 0 && req.MetadataFile == "" {
		return nil, errors.New("upload: no files to send")
	}
	fields := map[string]string{"model_name": req.ModelName}
	files := make([]formFile, 0, len(req.AudioFiles)+1)
	for _, p := range req.AudioFiles {
		files = append(files, formFile{field: "audio_files", path: p})
	}
	if req.MetadataFile != "" {
		files = append(files, formFile{field: "metadata_file", path: req.MetadataFile})
	}
	var out UploadResult
	if err := c.postMultipart(ctx, "/upload", fields, files, &out); err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	return &out, nil
}

func (c *Client) StartTraining(ctx context.Context, req TrainingRequest) (*Ack, error) {
	var out Ack
	if err := c.postJSON(ctx, "/start_training", req, &out); err != nil {
		return nil, fmt.Errorf("start training: %w", err)
	}
	return &out, nil
}

func (c *Client) TrainingStatus(ctx context.Context) (*TrainingStatus, error) {
	var out TrainingStatus
	if err := c.get(ctx, "/training_status", &out); err != nil {
		return nil, fmt.Errorf("training status: %w", err)
	}
	return &out, nil
}

func (c *Client) Models(ctx context.Context) ([]Model, error) {
	out := []Model{}
	if err := c.get(ctx, "/models", &out); err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return out, nil
}

func (c *Client) TestVoice(ctx context.Context, req TestVoiceRequest) (*TestVoiceResult, error) {
	var out TestVoiceResult
	if err := c.postJSON(ctx, "/test_voice", req, &out); err != nil {
		return nil, fmt.Errorf("test voice: %w", err)
	}
	return &out, nil
}

func (c *Client) TrainingDatasets(ctx context.Context) ([]Dataset, error) {
	out := []Dataset{}
	if err := c.get(ctx, "/training_datasets", &out); err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	return out, nil
}

func (c *Client) ExportCloud(ctx context.Context, req ExportRequest) (*Ack, error) {
	var out Ack
	if err := c.postJSON(ctx, "/export_cloud", req, &out); err != nil {
		return nil, fmt.Errorf("export cloud: %w", err)
	}
	return &out, nil
}

func (c *Client) CloudStatus(ctx context.Context) (*CloudStatus, error) {
	var out CloudStatus
	if err := c.get(ctx, "/cloud_status", &out); err != nil {
		return nil, fmt.Errorf("cloud status: %w", err)
	}
	return &out, nil
}

func (c *Client) StartRemoteMonitoring(ctx context.Context, req RemoteSession) (*Ack, error) {
	var out Ack
	if err := c.postJSON(ctx, "/start_remote_monitoring", req, &out); err != nil {
		return nil, fmt.Errorf("start remote monitoring: %w", err)
	}
	return &out, nil
}

func (c *Client) StopRemoteMonitoring(ctx context.Context) (*Ack, error) {
	var out Ack
	if err := c.postJSON(ctx, "/stop_remote_monitoring", struct{}{}, &out); err != nil {
		return nil, fmt.Errorf("stop remote monitoring: %w", err)
	}
	return &out, nil
}

func (c *Client) RemoteStatus(ctx context.Context) (*RemoteStatus, error) {
	var out RemoteStatus
	if err := c.get(ctx, "/remote_status", &out); err != nil {
		return nil, fmt.Errorf("remote status: %w", err)
	}
	return &out, nil
}

func (c *Client) DownloadTrainedModel(ctx context.Context, req DownloadRequest) (*Ack, error) {
	var out Ack
	if err := c.postJSON(ctx, "/download_trained_model", req, &out); err != nil {
		return nil, fmt.Errorf("download trained model: %w", err)
	}
	return &out, nil
}

func (c *Client) TranscriptionEngines(ctx context.Context) (*Engines, error) {
	var out Engines
	if err := c.get(ctx, "/transcription_engines", &out); err != nil {
		return nil, fmt.Errorf("transcription engines: %w", err)
	}
	return &out, nil
}

func (c *Client) StartTranscription(ctx context.Context, req TranscriptionRequest) (*Ack, error) {
	var out Ack
	if err := c.postJSON(ctx, "/start_transcription", req, &out); err != nil {
		return nil, fmt.Errorf("start transcription: %w", err)
	}
	return &out, nil
}

func (c *Client) TranscriptionStatus(ctx context.Context) (*TranscriptionStatus, error) {
	var out TranscriptionStatus
	if err := c.get(ctx, "/transcription_status", &out); err != nil {
		return nil, fmt.Errorf("transcription status: %w", err)
	}
	return &out, nil
}

func (c *Client) UploadTextFile(ctx context.Context, modelName, textFile string) (*Ack, error) {
	var out Ack
	fields := map[string]string{"model_name": modelName}
	files := []formFile{{field: "text_file", path: textFile}}
	if err := c.postMultipart(ctx, "/upload_text_file", fields, files, &out); err != nil {
		return nil, fmt.Errorf("upload text file: %w", err)
	}
	return &out, nil
}

// OpenPackage streams an exported training package. packageURL is the
// package_url from the cloud status, relative or absolute. The caller closes
// the body; size is -1 when the server does not announce it.
func (c *Client) OpenPackage(ctx context.Context, packageURL string) (io.ReadCloser, int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.ResolveURL(packageURL), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("open package: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("open package: send request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, 0, fmt.Errorf("open package: %w", apiErrorFrom(resp.StatusCode, body))
	}
	return resp.Body, resp.ContentLength, nil
}

type formFile struct {
	field string
	path  string
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) postMultipart(ctx context.Context, path string, fields map[string]string, files []formFile, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return fmt.Errorf("write field %s: %w", k, err)
		}
	}
	for _, f := range files {
		if err := attachFile(mw, f); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, out)
}

func attachFile(mw *multipart.Writer, f formFile) error {
	src, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.path, err)
	}
	defer src.Close()
	part, err := mw.CreateFormFile(f.field, filepath.Base(f.path))
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("copy %s: %w", f.path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(RequestIDHeader, uuid.NewString())
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// envelope holds the fields every reply may carry besides its payload.
type envelope struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiErrorFrom(resp.StatusCode, body)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
		if env.Error != "" || (env.Success != nil && !*env.Success) {
			return &APIError{Status: resp.StatusCode, Message: nz(env.Error, env.Message, "request failed")}
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func apiErrorFrom(status int, body []byte) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && (env.Error != "" || env.Message != "") {
		return &APIError{Status: status, Message: nz(env.Error, env.Message)}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{Status: status, Message: msg}
}

func nz(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
