package transcribe

import "errors"

// ErrAPIKeyMissing indicates OPENAI_API_KEY environment variable is not set.
var ErrAPIKeyMissing = errors.New("OPENAI_API_KEY environment variable not set")

// ErrFileNotFound indicates the audio file to upload does not exist.
var ErrFileNotFound = errors.New("audio file not found")

// ErrRateLimit indicates the API rate limit was exceeded (temporary, retryable).
var ErrRateLimit = errors.New("rate limit exceeded")

// ErrQuotaExceeded indicates the API quota was exceeded (billing issue, not retryable).
var ErrQuotaExceeded = errors.New("quota exceeded")

// ErrTimeout indicates a request timed out.
var ErrTimeout = errors.New("request timeout")

// ErrAuthFailed indicates API authentication failed (invalid key).
var ErrAuthFailed = errors.New("authentication failed")

// ErrServer indicates a 5xx response from the API (retryable).
var ErrServer = errors.New("server error")

// ErrAPI indicates a permanent API rejection (4xx other than auth/rate limit).
var ErrAPI = errors.New("API error")

// ErrTransport indicates a network-level failure before any response arrived.
var ErrTransport = errors.New("request failed")
