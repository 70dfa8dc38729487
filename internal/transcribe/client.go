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
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hbadr/go-scribe/internal/lang"
)

// Shape selects how much structure a transcription response carries.
type Shape int

const (
	// ShapePlain requests bare text, enough for plain transcript output.
	ShapePlain Shape = iota

	// ShapeStructured requests verbose JSON with timestamped segments,
	// needed for subtitle output and precise stitching.
	ShapeStructured
)

// DefaultModel is used when the request does not name a model.
const DefaultModel = "whisper-1"

// transcriptionsPath is the API route for audio transcription, relative
// to the configured base URL.
const transcriptionsPath = "/audio/transcriptions"

// diarizeFallbackMarkers are the error substrings (matched lowercase)
// that mean the model rejected a diarization request rather than the
// audio itself. Any of them triggers one retry without diarization.
var diarizeFallbackMarkers = []string{"400", "not supported", "diarize", "speaker"}

// Segment is one timestamped span of a structured response.
// Timestamps are relative to the uploaded file, not the full source.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Response is a normalized transcription result.
// Raw always holds a JSON document; bare-text API responses are
// wrapped as {"text": ...} so downstream consumers see one shape.
type Response struct {
	Text     string
	Segments []Segment
	Raw      json.RawMessage
}

// Request describes one transcription call.
type Request struct {
	Model    string // Defaults to DefaultModel when empty
	Language string // ISO 639-1 code or locale; empty means auto-detect
	Prompt   string // Optional context to steer vocabulary
	Shape    Shape
	Diarize  bool // Ask for speaker-aware output; falls back when unsupported
}

// Transcriber transcribes a single audio file.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, req Request) (Response, error)
}

// audioTranscriber is an internal interface for OpenAI audio transcription.
// *openai.Client implements this implicitly, allowing mocks in tests.
type audioTranscriber interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

// httpDoer abstracts HTTP client for testing.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Compile-time interface compliance checks.
var (
	_ Transcriber      = (*OpenAIClient)(nil)
	_ audioTranscriber = (*openai.Client)(nil)
)

// OpenAIClient transcribes audio via OpenAI's transcription API.
//
// Plain requests go through go-openai. Structured requests use direct
// multipart HTTP because go-openai cannot express verbose_json with
// timestamp granularities. Both paths share the same retry policy.
type OpenAIClient struct {
	client      audioTranscriber
	httpClient  httpDoer
	apiKey      string
	apiBase     string
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// ClientOption configures an OpenAIClient.
type ClientOption func(*OpenAIClient)

// WithMaxAttempts sets the total request attempt budget.
func WithMaxAttempts(n int) ClientOption {
	return func(c *OpenAIClient) {
		if n >= 1 {
			c.maxAttempts = n
		}
	}
}

// WithRetryDelays sets the base and max delays for exponential backoff.
func WithRetryDelays(base, max time.Duration) ClientOption {
	return func(c *OpenAIClient) {
		if base > 0 {
			c.baseDelay = base
		}
		if max > 0 {
			c.maxDelay = max
		}
	}
}

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(h httpDoer) ClientOption {
	return func(c *OpenAIClient) { c.httpClient = h }
}

// WithAudioTranscriber sets a custom go-openai style client (for testing).
func WithAudioTranscriber(a audioTranscriber) ClientOption {
	return func(c *OpenAIClient) { c.client = a }
}

// NewOpenAIClient creates an OpenAIClient.
// apiBase is the API root (e.g. https://api.openai.com/v1); requestTimeout
// bounds each individual upload attempt.
func NewOpenAIClient(apiKey, apiBase string, requestTimeout time.Duration, opts ...ClientOption) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(apiBase, "/")

	if requestTimeout <= 0 {
		requestTimeout = 5 * time.Minute
	}

	c := &OpenAIClient{
		client:      openai.NewClientWithConfig(cfg),
		httpClient:  &http.Client{Timeout: requestTimeout},
		apiKey:      apiKey,
		apiBase:     strings.TrimRight(apiBase, "/"),
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		maxDelay:    defaultMaxDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transcribe uploads an audio file and returns the normalized response.
// Transient failures are retried with exponential backoff. A rejected
// diarization request is retried once without diarization before the
// error propagates.
func (c *OpenAIClient) Transcribe(ctx context.Context, audioPath string, req Request) (Response, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return Response{}, fmt.Errorf("%w: %s", ErrFileNotFound, audioPath)
	}
	if req.Model == "" {
		req.Model = DefaultModel
	}

	resp, err := c.transcribeWithRetry(ctx, audioPath, req)
	if err != nil && req.Diarize && isDiarizeUnsupported(err) {
		fallback := req
		fallback.Diarize = false
		return c.transcribeWithRetry(ctx, audioPath, fallback)
	}
	return resp, err
}

// transcribeWithRetry executes one logical transcription with backoff.
// The upload is rebuilt per attempt so the file is reread each time.
func (c *OpenAIClient) transcribeWithRetry(ctx context.Context, audioPath string, req Request) (Response, error) {
	cfg := RetryConfig{
		MaxAttempts: c.maxAttempts,
		BaseDelay:   c.baseDelay,
		MaxDelay:    c.maxDelay,
	}

	return RetryWithBackoff(ctx, cfg, func() (Response, error) {
		if req.Shape == ShapeStructured || req.Diarize {
			return c.transcribeStructured(ctx, audioPath, req)
		}
		return c.transcribePlain(ctx, audioPath, req)
	}, isRetryableError)
}

// transcribePlain requests bare text through go-openai.
func (c *OpenAIClient) transcribePlain(ctx context.Context, audioPath string, req Request) (Response, error) {
	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:       req.Model,
		FilePath:    audioPath,
		Format:      openai.AudioResponseFormatText,
		Prompt:      req.Prompt,
		Language:    lang.BaseCode(req.Language), // API only accepts ISO 639-1 base codes
		Temperature: 0,
	})
	if err != nil {
		return Response{}, classifyError(err)
	}

	raw, err := json.Marshal(map[string]string{"text": resp.Text})
	if err != nil {
		return Response{}, fmt.Errorf("encode response: %w", err)
	}
	return Response{Text: resp.Text, Raw: raw}, nil
}

// transcribeStructured requests verbose JSON via direct multipart HTTP.
func (c *OpenAIClient) transcribeStructured(ctx context.Context, audioPath string, req Request) (Response, error) {
	body, contentType, err := c.buildMultipart(audioPath, req)
	if err != nil {
		return Response{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+transcriptionsPath, body)
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Response{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return Response{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}

	if resp.StatusCode != http.StatusOK {
		return Response{}, classifyStatus(resp.StatusCode, respBody)
	}

	return normalizeBody(respBody), nil
}

// buildMultipart assembles the upload form for a structured request.
func (c *OpenAIClient) buildMultipart(audioPath string, req Request) (*bytes.Buffer, string, error) {
	file, err := os.Open(audioPath) // #nosec G304 -- audioPath is from internal chunking
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s", ErrFileNotFound, audioPath)
	}
	defer func() { _ = file.Close() }()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("copy file to form: %w", err)
	}

	fields := map[string]string{
		"model":           req.Model,
		"response_format": "verbose_json",
		"temperature":     "0",
	}
	if code := lang.BaseCode(req.Language); code != "" {
		fields["language"] = code
	}
	if req.Prompt != "" {
		fields["prompt"] = req.Prompt
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("write %s field: %w", key, err)
		}
	}

	// Segment timestamps must be requested explicitly on whisper-1.
	// Diarization-capable models infer them from the verbose format.
	if req.Diarize || req.Model == DefaultModel {
		if err := writer.WriteField("timestamp_granularities[]", "segment"); err != nil {
			return nil, "", fmt.Errorf("write timestamp_granularities field: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &body, writer.FormDataContentType(), nil
}

// structuredResponse is the verbose_json document shape.
type structuredResponse struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}

// normalizeBody folds any 200 response body into a Response.
// Non-JSON bodies are treated as bare transcript text.
func normalizeBody(body []byte) Response {
	var parsed structuredResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		text := strings.TrimSpace(string(body))
		raw, _ := json.Marshal(map[string]string{"text": text})
		return Response{Text: text, Raw: raw}
	}
	return Response{Text: parsed.Text, Segments: parsed.Segments, Raw: append(json.RawMessage(nil), body...)}
}

// apiErrorResponse is the error envelope the API returns.
type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// classifyStatus maps a non-200 HTTP response to a sentinel error.
func classifyStatus(statusCode int, body []byte) error {
	msg := string(body)
	var envelope apiErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		msg = envelope.Error.Message
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		if strings.Contains(msg, "quota") || strings.Contains(msg, "billing") {
			return fmt.Errorf("%s: %w", msg, ErrQuotaExceeded)
		}
		return fmt.Errorf("%s: %w", msg, ErrRateLimit)
	case statusCode == http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", msg, ErrAuthFailed)
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return fmt.Errorf("%s: %w", msg, ErrTimeout)
	case statusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w %d: %s", ErrServer, statusCode, msg)
	default:
		return fmt.Errorf("%w %d: %s", ErrAPI, statusCode, msg)
	}
}

// classifyError maps go-openai errors to sentinel errors.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			// Quota exceeded is a billing issue; retrying cannot help.
			if strings.Contains(apiErr.Message, "quota") ||
				strings.Contains(apiErr.Message, "billing") {
				return fmt.Errorf("%s: %w", apiErr.Message, ErrQuotaExceeded)
			}
			return fmt.Errorf("%s: %w", apiErr.Message, ErrRateLimit)
		case apiErr.HTTPStatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%s: %w", apiErr.Message, ErrAuthFailed)
		case apiErr.HTTPStatusCode == http.StatusRequestTimeout ||
			apiErr.HTTPStatusCode == http.StatusGatewayTimeout:
			return fmt.Errorf("%s: %w", apiErr.Message, ErrTimeout)
		case apiErr.HTTPStatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("%w %d: %s", ErrServer, apiErr.HTTPStatusCode, apiErr.Message)
		case apiErr.HTTPStatusCode >= http.StatusBadRequest:
			return fmt.Errorf("%w %d: %s", ErrAPI, apiErr.HTTPStatusCode, apiErr.Message)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out: %w", ErrTimeout)
	}

	return err
}

// isRetryableError determines if an error is transient and should be retried.
func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrServer) ||
		errors.Is(err, ErrTransport)
}

// isDiarizeUnsupported reports whether err looks like a model rejecting
// diarization rather than the request as a whole.
func isDiarizeUnsupported(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range diarizeFallbackMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
