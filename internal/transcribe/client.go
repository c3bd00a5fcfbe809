package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/clipflow/pipeline/internal/retry"
)

// MaxUploadBytes is the hard payload ceiling of the transcription API.
// Inputs beyond it must be chunked before submission.
const MaxUploadBytes = 25 << 20

// Static errors for transcription client operations.
var (
	// ErrAPIKeyRequired is returned when no API key is configured.
	ErrAPIKeyRequired = errors.New("transcribe: API key is required")
	// ErrFileTooLarge is returned when the audio file exceeds MaxUploadBytes.
	// This is a caller bug (missing chunking), never worth retrying.
	ErrFileTooLarge = errors.New("transcribe: audio file exceeds upload limit")
	// ErrServerError is returned when the API responds with a 5xx status.
	ErrServerError = errors.New("transcribe: server error")
	// ErrRateLimited is returned when the API responds with a 429 status.
	ErrRateLimited = errors.New("transcribe: rate limited")
	// ErrRequestFailed is returned for other non-2xx responses.
	ErrRequestFailed = errors.New("transcribe: request failed")
)

// Client defines the interface for the speech-to-text service.
type Client interface {
	// Transcribe submits one audio file and returns its transcript. The call
	// is a single attempt; retry policy belongs to the caller. language is an
	// optional ISO 639-1 hint.
	Transcribe(ctx context.Context, audioPath, language string) (Transcript, error)
}

// HTTPClient talks to the OpenAI-compatible transcription endpoint.
type HTTPClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithBaseURL sets a custom API base URL.
func WithBaseURL(url string) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseURL = url
	}
}

// WithModel sets the transcription model name.
func WithModel(model string) ClientOption {
	return func(hc *HTTPClient) {
		hc.model = model
	}
}

// NewClient creates a new transcription client. The API key is required; if
// empty it is read from the OPENAI_API_KEY environment variable.
func NewClient(apiKey string, opts ...ClientOption) (*HTTPClient, error) {
	c := &HTTPClient{
		apiKey:     apiKey,
		baseURL:    "https://api.openai.com/v1",
		model:      "whisper-1",
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey == "" {
		c.apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.apiKey == "" {
		return nil, ErrAPIKeyRequired
	}

	return c, nil
}

// Disabled is a Client for deployments without transcription credentials.
// Every call fails with ErrAPIKeyRequired, so pipelines that do not need
// transcription keep working.
type Disabled struct{}

func (Disabled) Transcribe(context.Context, string, string) (Transcript, error) {
	return Transcript{}, ErrAPIKeyRequired
}

// verboseResponse is the verbose_json response shape of the API.
type verboseResponse struct {
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe submits one audio file and returns its transcript.
func (c *HTTPClient) Transcribe(ctx context.Context, audioPath, language string) (Transcript, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return Transcript{}, fmt.Errorf("transcribe: stat audio: %w", err)
	}
	if info.Size() > MaxUploadBytes {
		return Transcript{}, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, info.Size())
	}

	body, contentType, err := c.buildRequestBody(audioPath, language)
	if err != nil {
		return Transcript{}, err
	}

	url := c.baseURL + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return Transcript{}, fmt.Errorf("transcribe: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Transcript{}, fmt.Errorf("transcribe: %w", ctx.Err())
		}
		return Transcript{}, retry.Retryable(fmt.Errorf("transcribe: request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transcript{}, retry.Retryable(fmt.Errorf("transcribe: read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Transcript{}, classifyStatus(resp.StatusCode, respBody)
	}

	var parsed verboseResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Transcript{}, fmt.Errorf("transcribe: unmarshal response: %w", err)
	}

	t := Transcript{
		Language: parsed.Language,
		Duration: parsed.Duration,
		Text:     parsed.Text,
		Segments: make([]Segment, 0, len(parsed.Segments)),
	}
	for _, s := range parsed.Segments {
		t.Segments = append(t.Segments, Segment{Start: s.Start, End: s.End, Text: s.Text})
	}
	return t, nil
}

// buildRequestBody assembles the multipart form for one audio file.
func (c *HTTPClient) buildRequestBody(audioPath, language string) (io.Reader, string, error) {
	f, err := os.Open(audioPath) // #nosec G304 - path is provided by trusted internal code
	if err != nil {
		return nil, "", fmt.Errorf("transcribe: open audio: %w", err)
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", fmt.Errorf("transcribe: create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("transcribe: copy audio: %w", err)
	}

	fields := map[string]string{
		"model":           c.model,
		"response_format": "verbose_json",
	}
	if language != "" {
		fields["language"] = language
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("transcribe: write field %s: %w", k, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("transcribe: close multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// classifyStatus maps non-2xx responses onto the retryable/terminal taxonomy:
// 5xx and 429 are transient, everything else is a terminal request error.
func classifyStatus(status int, body []byte) error {
	switch {
	case status >= 500:
		return retry.Retryable(fmt.Errorf("%w %d: %s", ErrServerError, status, body))
	case status == http.StatusTooManyRequests:
		return retry.Retryable(fmt.Errorf("%w: %s", ErrRateLimited, body))
	default:
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, status, body)
	}
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
