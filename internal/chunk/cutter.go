package chunk

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// cutTimeout bounds a single chunk extraction.
const cutTimeout = 60 * time.Second

// Cutter materializes a chunk plan into files via ffmpeg.
type Cutter struct {
	ffmpegPath string
	runner     commandRunner
	maxBytes   int64
	warn       io.Writer
}

// CutterOption configures a Cutter.
type CutterOption func(*Cutter)

// WithCutRunner sets a custom command runner (for testing).
func WithCutRunner(r commandRunner) CutterOption {
	return func(c *Cutter) { c.runner = r }
}

// WithCutWarnWriter sets the destination for oversize warnings.
func WithCutWarnWriter(w io.Writer) CutterOption {
	return func(c *Cutter) { c.warn = w }
}

// NewCutter creates a Cutter using the given ffmpeg binary.
// maxBytes is the per-request upload ceiling; chunks that come out
// larger only produce a warning since codec copy can drift from the
// planned byte rate.
func NewCutter(ffmpegPath string, maxBytes int64, opts ...CutterOption) *Cutter {
	if maxBytes <= 0 || maxBytes > MaxUploadBytes {
		maxBytes = MaxUploadBytes
	}
	c := &Cutter{
		ffmpegPath: ffmpegPath,
		runner:     osRunner{},
		maxBytes:   maxBytes,
		warn:       io.Discard,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cut extracts every chunk in the plan from the source asset.
//
// Specs whose path is the asset itself (whole-file plans) need no
// extraction and pass through. If the very first extraction fails the
// plan degrades to a single whole-file chunk; a failure later in the
// plan is fatal because earlier chunk files would be orphaned.
// The returned plan is what the checkpoint should record.
func (c *Cutter) Cut(ctx context.Context, assetPath string, assetDuration float64, plan Plan) (Plan, error) {
	for i, spec := range plan {
		if spec.Path == assetPath {
			continue
		}

		if err := c.cutOne(ctx, assetPath, spec); err != nil {
			if i == 0 {
				fmt.Fprintf(c.warn, "Warning: chunk extraction failed, sending file whole: %v\n", err)
				return Plan{{Index: 0, Start: 0, Duration: assetDuration, Path: assetPath}}, nil
			}
			return nil, fmt.Errorf("chunk %d: %w", spec.Index, err)
		}

		if info, err := os.Stat(spec.Path); err == nil && info.Size() > c.maxBytes {
			fmt.Fprintf(c.warn, "Warning: chunk %d is %d bytes, over the %d byte upload limit and may be rejected\n",
				spec.Index, info.Size(), c.maxBytes)
		}
	}
	return plan, nil
}

// cutOne runs a single ffmpeg extraction.
// Codec copy keeps extraction fast and bit-exact.
func (c *Cutter) cutOne(ctx context.Context, assetPath string, spec Spec) error {
	ctx, cancel := context.WithTimeout(ctx, cutTimeout)
	defer cancel()

	_, stderr, err := c.runner.Run(ctx, c.ffmpegPath,
		"-ss", formatSeconds(spec.Start),
		"-t", formatSeconds(spec.Duration),
		"-i", assetPath,
		"-acodec", "copy",
		"-y",
		spec.Path,
	)
	if err != nil {
		msg := lastLine(stderr)
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("%w: %s", ErrCutFailed, msg)
	}
	return nil
}

// formatSeconds renders a second count the way ffmpeg expects it.
func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}

// lastLine returns the last non-empty line of s.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
