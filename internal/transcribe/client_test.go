package transcribe_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hbadr/go-scribe/internal/transcribe"
)

// scriptedDoer replays a list of canned HTTP responses and records the
// multipart form values of every request it sees.
type scriptedDoer struct {
	responses []*http.Response

	calls int
	forms []map[string][]string
	urls  []string
}

func cannedResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func (s *scriptedDoer) Do(req *http.Request) (*http.Response, error) {
	if err := req.ParseMultipartForm(64 << 20); err != nil {
		return nil, err
	}
	s.forms = append(s.forms, req.MultipartForm.Value)
	s.urls = append(s.urls, req.URL.String())

	if s.calls >= len(s.responses) {
		return nil, errors.New("no scripted response left")
	}
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

// fakeAudioTranscriber fakes the go-openai client for plain requests.
type fakeAudioTranscriber struct {
	text string
	err  error

	calls    int
	lastReq  openai.AudioRequest
	failOnce bool
}

func (f *fakeAudioTranscriber) CreateTranscription(_ context.Context, req openai.AudioRequest) (openai.AudioResponse, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil && (!f.failOnce || f.calls == 1) {
		return openai.AudioResponse{}, f.err
	}
	return openai.AudioResponse{Text: f.text}, nil
}

// writeChunkFile creates a small fake audio file to upload.
func writeChunkFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chunk_0000.wav")
	if err := os.WriteFile(path, []byte("RIFF fake audio"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newClient(t *testing.T, opts ...transcribe.ClientOption) *transcribe.OpenAIClient {
	t.Helper()
	base := []transcribe.ClientOption{
		transcribe.WithRetryDelays(time.Millisecond, 2*time.Millisecond),
	}
	return transcribe.NewOpenAIClient("sk-test", "https://api.example.com/v1", time.Minute,
		append(base, opts...)...)
}

const verboseBody = `{"text":"hello world","segments":[{"start":0.0,"end":2.5,"text":"hello"},{"start":2.5,"end":5.0,"text":"world"}]}`

func TestTranscribeStructured(t *testing.T) {
	t.Parallel()

	t.Run("parses verbose json", func(t *testing.T) {
		t.Parallel()
		doer := &scriptedDoer{responses: []*http.Response{cannedResponse(200, verboseBody)}}
		client := newClient(t, transcribe.WithHTTPClient(doer))

		resp, err := client.Transcribe(context.Background(), writeChunkFile(t), transcribe.Request{
			Language: "ar",
			Shape:    transcribe.ShapeStructured,
		})
		if err != nil {
			t.Fatalf("Transcribe() error = %v", err)
		}
		if resp.Text != "hello world" {
			t.Errorf("Text = %q", resp.Text)
		}
		if len(resp.Segments) != 2 || resp.Segments[1].Start != 2.5 {
			t.Errorf("Segments = %+v", resp.Segments)
		}
		if len(resp.Raw) == 0 {
			t.Error("Raw should carry the response body")
		}

		form := doer.forms[0]
		if got := form["model"]; len(got) != 1 || got[0] != "whisper-1" {
			t.Errorf("model field = %v, want default whisper-1", got)
		}
		if got := form["response_format"]; len(got) != 1 || got[0] != "verbose_json" {
			t.Errorf("response_format field = %v", got)
		}
		if got := form["language"]; len(got) != 1 || got[0] != "ar" {
			t.Errorf("language field = %v", got)
		}
		if got := form["timestamp_granularities[]"]; len(got) != 1 || got[0] != "segment" {
			t.Errorf("timestamp_granularities field = %v", got)
		}
		if doer.urls[0] != "https://api.example.com/v1/audio/transcriptions" {
			t.Errorf("url = %q", doer.urls[0])
		}
	})

	t.Run("retries rate limit then succeeds", func(t *testing.T) {
		t.Parallel()
		doer := &scriptedDoer{responses: []*http.Response{
			cannedResponse(429, `{"error":{"message":"rate limited"}}`),
			cannedResponse(429, `{"error":{"message":"rate limited"}}`),
			cannedResponse(200, verboseBody),
		}}
		client := newClient(t, transcribe.WithHTTPClient(doer), transcribe.WithMaxAttempts(3))

		resp, err := client.Transcribe(context.Background(), writeChunkFile(t), transcribe.Request{
			Shape: transcribe.ShapeStructured,
		})
		if err != nil {
			t.Fatalf("Transcribe() error = %v", err)
		}
		if doer.calls != 3 {
			t.Errorf("calls = %d, want 3", doer.calls)
		}
		if resp.Text != "hello world" {
			t.Errorf("Text = %q", resp.Text)
		}
	})

	t.Run("attempt budget exhausted", func(t *testing.T) {
		t.Parallel()
		doer := &scriptedDoer{responses: []*http.Response{
			cannedResponse(500, `{"error":{"message":"boom"}}`),
			cannedResponse(502, `{"error":{"message":"boom"}}`),
		}}
		client := newClient(t, transcribe.WithHTTPClient(doer), transcribe.WithMaxAttempts(2))

		_, err := client.Transcribe(context.Background(), writeChunkFile(t), transcribe.Request{
			Shape: transcribe.ShapeStructured,
		})
		if !errors.Is(err, transcribe.ErrServer) {
			t.Fatalf("error = %v, want ErrServer", err)
		}
		if doer.calls != 2 {
			t.Errorf("calls = %d, want exactly the attempt budget", doer.calls)
		}
	})

	t.Run("client error does not retry", func(t *testing.T) {
		t.Parallel()
		doer := &scriptedDoer{responses: []*http.Response{
			cannedResponse(413, `{"error":{"message":"file too large"}}`),
		}}
		client := newClient(t, transcribe.WithHTTPClient(doer), transcribe.WithMaxAttempts(5))

		_, err := client.Transcribe(context.Background(), writeChunkFile(t), transcribe.Request{
			Shape: transcribe.ShapeStructured,
		})
		if !errors.Is(err, transcribe.ErrAPI) {
			t.Fatalf("error = %v, want ErrAPI", err)
		}
		if doer.calls != 1 {
			t.Errorf("calls = %d, want 1", doer.calls)
		}
	})

	t.Run("quota exhaustion is permanent despite the 429", func(t *testing.T) {
		t.Parallel()
		doer := &scriptedDoer{responses: []*http.Response{
			cannedResponse(429, `{"error":{"message":"You exceeded your current quota"}}`),
		}}
		client := newClient(t, transcribe.WithHTTPClient(doer), transcribe.WithMaxAttempts(5))

		_, err := client.Transcribe(context.Background(), writeChunkFile(t), transcribe.Request{
			Shape: transcribe.ShapeStructured,
		})
		if !errors.Is(err, transcribe.ErrQuotaExceeded) {
			t.Fatalf("error = %v, want ErrQuotaExceeded", err)
		}
		if doer.calls != 1 {
			t.Errorf("calls = %d, want 1", doer.calls)
		}
	})
}

func TestTranscribeDiarizeFallback(t *testing.T) {
	t.Parallel()

	t.Run("unsupported diarization falls back once", func(t *testing.T) {
		t.Parallel()
		doer := &scriptedDoer{responses: []*http.Response{
			cannedResponse(400, `{"error":{"message":"diarize is not supported for this model"}}`),
			cannedResponse(200, verboseBody),
		}}
		client := newClient(t, transcribe.WithHTTPClient(doer))

		resp, err := client.Transcribe(context.Background(), writeChunkFile(t), transcribe.Request{
			Shape:   transcribe.ShapeStructured,
			Diarize: true,
		})
		if err != nil {
			t.Fatalf("Transcribe() error = %v", err)
		}
		if doer.calls != 2 {
			t.Errorf("calls = %d, want diarize attempt plus one fallback", doer.calls)
		}
		if resp.Text != "hello world" {
			t.Errorf("Text = %q", resp.Text)
		}
	})

	t.Run("unrelated failure does not fall back", func(t *testing.T) {
		t.Parallel()
		doer := &scriptedDoer{responses: []*http.Response{
			cannedResponse(401, `{"error":{"message":"invalid api key"}}`),
		}}
		client := newClient(t, transcribe.WithHTTPClient(doer))

		_, err := client.Transcribe(context.Background(), writeChunkFile(t), transcribe.Request{
			Shape:   transcribe.ShapeStructured,
			Diarize: true,
		})
		if !errors.Is(err, transcribe.ErrAuthFailed) {
			t.Fatalf("error = %v, want ErrAuthFailed", err)
		}
		if doer.calls != 1 {
			t.Errorf("calls = %d, want 1", doer.calls)
		}
	})
}

func TestTranscribePlain(t *testing.T) {
	t.Parallel()

	t.Run("uses go-openai and wraps text as json", func(t *testing.T) {
		t.Parallel()
		fake := &fakeAudioTranscriber{text: "plain transcript"}
		client := newClient(t, transcribe.WithAudioTranscriber(fake))

		resp, err := client.Transcribe(context.Background(), writeChunkFile(t), transcribe.Request{
			Language: "pt-BR",
		})
		if err != nil {
			t.Fatalf("Transcribe() error = %v", err)
		}
		if resp.Text != "plain transcript" {
			t.Errorf("Text = %q", resp.Text)
		}
		if string(resp.Raw) != `{"text":"plain transcript"}` {
			t.Errorf("Raw = %s, want wrapped json", resp.Raw)
		}
		if fake.lastReq.Language != "pt" {
			t.Errorf("Language = %q, want base code pt", fake.lastReq.Language)
		}
		if fake.lastReq.Model != "whisper-1" {
			t.Errorf("Model = %q, want default", fake.lastReq.Model)
		}
	})

	t.Run("retries transient api errors", func(t *testing.T) {
		t.Parallel()
		fake := &fakeAudioTranscriber{
			text:     "recovered",
			err:      &openai.APIError{HTTPStatusCode: 503, Message: "overloaded"},
			failOnce: true,
		}
		client := newClient(t, transcribe.WithAudioTranscriber(fake), transcribe.WithMaxAttempts(3))

		resp, err := client.Transcribe(context.Background(), writeChunkFile(t), transcribe.Request{})
		if err != nil {
			t.Fatalf("Transcribe() error = %v", err)
		}
		if resp.Text != "recovered" || fake.calls != 2 {
			t.Errorf("got text %q after %d calls, want recovered after 2", resp.Text, fake.calls)
		}
	})
}

func TestTranscribeMissingFile(t *testing.T) {
	t.Parallel()

	client := newClient(t, transcribe.WithHTTPClient(&scriptedDoer{}))
	_, err := client.Transcribe(context.Background(), "/nope/chunk.wav", transcribe.Request{})
	if !errors.Is(err, transcribe.ErrFileNotFound) {
		t.Fatalf("error = %v, want ErrFileNotFound", err)
	}
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "rate limit",
			err:  &openai.APIError{HTTPStatusCode: 429, Message: "slow down"},
			want: transcribe.ErrRateLimit,
		},
		{
			name: "quota",
			err:  &openai.APIError{HTTPStatusCode: 429, Message: "insufficient quota"},
			want: transcribe.ErrQuotaExceeded,
		},
		{
			name: "auth",
			err:  &openai.APIError{HTTPStatusCode: 401, Message: "bad key"},
			want: transcribe.ErrAuthFailed,
		},
		{
			name: "server",
			err:  &openai.APIError{HTTPStatusCode: 500, Message: "oops"},
			want: transcribe.ErrServer,
		},
		{
			name: "bad request",
			err:  &openai.APIError{HTTPStatusCode: 400, Message: "bad audio"},
			want: transcribe.ErrAPI,
		},
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: transcribe.ErrTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := transcribe.ClassifyError(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("ClassifyError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRetryableError(t *testing.T) {
	t.Parallel()

	retryable := []error{transcribe.ErrRateLimit, transcribe.ErrTimeout, transcribe.ErrServer, transcribe.ErrTransport}
	for _, err := range retryable {
		if !transcribe.IsRetryableError(err) {
			t.Errorf("IsRetryableError(%v) = false, want true", err)
		}
	}

	permanent := []error{transcribe.ErrQuotaExceeded, transcribe.ErrAuthFailed, transcribe.ErrAPI, context.Canceled, errors.New("mystery")}
	for _, err := range permanent {
		if transcribe.IsRetryableError(err) {
			t.Errorf("IsRetryableError(%v) = true, want false", err)
		}
	}
}

func TestNormalizeBody(t *testing.T) {
	t.Parallel()

	t.Run("json body", func(t *testing.T) {
		t.Parallel()
		resp := transcribe.NormalizeBody([]byte(verboseBody))
		if resp.Text != "hello world" || len(resp.Segments) != 2 {
			t.Errorf("resp = %+v", resp)
		}
		if !bytes.Equal(resp.Raw, []byte(verboseBody)) {
			t.Errorf("Raw = %s, want original body", resp.Raw)
		}
	})

	t.Run("bare text body", func(t *testing.T) {
		t.Parallel()
		resp := transcribe.NormalizeBody([]byte("just some text\n"))
		if resp.Text != "just some text" {
			t.Errorf("Text = %q", resp.Text)
		}
		if string(resp.Raw) != `{"text":"just some text"}` {
			t.Errorf("Raw = %s", resp.Raw)
		}
		if resp.Segments != nil {
			t.Errorf("Segments = %v, want nil", resp.Segments)
		}
	})
}

func TestIsDiarizeUnsupported(t *testing.T) {
	t.Parallel()

	tests := []struct {
		msg  string
		want bool
	}{
		{msg: "API error 400: bad field", want: true},
		{msg: "Diarize is Not Supported", want: true},
		{msg: "no speaker labels available", want: true},
		{msg: "rate limit exceeded", want: false},
	}
	for _, tt := range tests {
		if got := transcribe.IsDiarizeUnsupported(errors.New(tt.msg)); got != tt.want {
			t.Errorf("IsDiarizeUnsupported(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}
