package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-audio/wav"
)

// probeTimeout bounds a single ffprobe invocation.
const probeTimeout = 30 * time.Second

// Prober reads media durations via ffprobe, with a WAV-header fallback
// for the files this tool produces itself.
type Prober struct {
	ffprobePath string
	runner      commandRunner
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithProbeRunner sets a custom command runner (for testing).
func WithProbeRunner(r commandRunner) ProberOption {
	return func(p *Prober) { p.runner = r }
}

// NewProber creates a Prober using the given ffprobe binary.
func NewProber(ffprobePath string, opts ...ProberOption) *Prober {
	p := &Prober{
		ffprobePath: ffprobePath,
		runner:      osRunner{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Duration returns the media duration in seconds.
// Tries ffprobe first; for WAV files it falls back to decoding the
// header directly when ffprobe fails or is unavailable.
// Returns 0 with an error when the duration cannot be determined;
// callers treat that as a degraded, not fatal, condition.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	stdout, stderr, err := p.runner.Run(ctx, p.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err == nil {
		if d, perr := strconv.ParseFloat(strings.TrimSpace(stdout), 64); perr == nil && d >= 0 {
			return d, nil
		}
		err = fmt.Errorf("unparseable ffprobe output %q", strings.TrimSpace(stdout))
	} else {
		err = fmt.Errorf("ffprobe: %w: %s", err, tail(stderr, 3))
	}

	if strings.EqualFold(filepath.Ext(path), ".wav") {
		if d, werr := wavDuration(path); werr == nil {
			return d, nil
		}
	}

	return 0, fmt.Errorf("probe duration of %s: %w", filepath.Base(path), err)
}

// wavDuration reads the duration from a WAV file header.
func wavDuration(path string) (float64, error) {
	f, err := os.Open(path) // #nosec G304 -- path was validated by the caller
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	dec := wav.NewDecoder(f)
	d, err := dec.Duration()
	if err != nil {
		return 0, fmt.Errorf("decode wav header: %w", err)
	}
	return d.Seconds(), nil
}

// tail returns the last n non-empty lines of s, joined with "; ".
// ffmpeg tools bury the useful message at the end of verbose stderr.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	var kept []string
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			kept = append(kept, strings.TrimSpace(line))
		}
	}
	if len(kept) > n {
		kept = kept[len(kept)-n:]
	}
	return strings.Join(kept, "; ")
}
