package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// API environment variables.
const (
	EnvAPIKey         = "OPENAI_API_KEY"
	EnvAPIBase        = "OPENAI_API_BASE"
	EnvModel          = "OPENAI_MODEL"
	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvMaxRetries     = "MAX_RETRIES"
	EnvRetryDelay     = "RETRY_DELAY"
)

// Defaults for API settings.
const (
	DefaultAPIBase        = "https://api.openai.com/v1"
	DefaultModel          = "whisper-1"
	DefaultRequestTimeout = 300 * time.Second
	DefaultMaxRetries     = 3
	DefaultRetryDelay     = time.Second
)

// Settings holds API connection parameters resolved from the environment.
type Settings struct {
	APIKey         string
	APIBase        string
	Model          string
	RequestTimeout time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
}

// LoadSettings resolves API settings from environment variables,
// falling back to defaults for anything unset.
// Malformed numeric values are an error, not silently ignored.
func LoadSettings(getenv func(string) string) (Settings, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	s := Settings{
		APIKey:         getenv(EnvAPIKey),
		APIBase:        DefaultAPIBase,
		Model:          DefaultModel,
		RequestTimeout: DefaultRequestTimeout,
		MaxRetries:     DefaultMaxRetries,
		RetryDelay:     DefaultRetryDelay,
	}

	if base := getenv(EnvAPIBase); base != "" {
		s.APIBase = base
	}
	if model := getenv(EnvModel); model != "" {
		s.Model = model
	}

	if v := getenv(EnvRequestTimeout); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			return s, fmt.Errorf("invalid %s value %q: expected positive integer seconds", EnvRequestTimeout, v)
		}
		s.RequestTimeout = time.Duration(secs) * time.Second
	}

	if v := getenv(EnvMaxRetries); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return s, fmt.Errorf("invalid %s value %q: expected integer >= 1", EnvMaxRetries, v)
		}
		s.MaxRetries = n
	}

	if v := getenv(EnvRetryDelay); v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil || secs <= 0 {
			return s, fmt.Errorf("invalid %s value %q: expected positive seconds", EnvRetryDelay, v)
		}
		s.RetryDelay = time.Duration(secs * float64(time.Second))
	}

	return s, nil
}
