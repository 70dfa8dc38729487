package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Asset is a local file ready for chunk planning.
type Asset struct {
	Path     string  // Path to the audio file (WAV unless conversion fell back)
	Duration float64 // Duration in seconds; 0 when probing failed
	Size     int64   // Size in bytes
}

// Normalizer turns arbitrary audio/video inputs into transcription-ready assets.
type Normalizer struct {
	prober     *Prober
	transcoder *Transcoder
	maxBytes   int64
	warn       io.Writer
}

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*Normalizer)

// WithWarnWriter sets the destination for degraded-mode warnings.
func WithWarnWriter(w io.Writer) NormalizerOption {
	return func(n *Normalizer) { n.warn = w }
}

// NewNormalizer creates a Normalizer.
// maxBytes is the per-request upload ceiling; a failed audio conversion
// may fall back to the original file only when it fits under this limit.
func NewNormalizer(prober *Prober, transcoder *Transcoder, maxBytes int64, opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		prober:     prober,
		transcoder: transcoder,
		maxBytes:   maxBytes,
		warn:       discard,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize prepares input for transcription and returns the resulting asset.
//
// Video inputs have their audio extracted to WAV; extraction failure is fatal
// since there is nothing to fall back to. Audio inputs are converted to WAV
// for uniform chunking; if conversion fails, the original file is used as-is
// provided it fits within a single upload. Unrecognized extensions are
// rejected before any ffmpeg work.
func (n *Normalizer) Normalize(ctx context.Context, input, workDir string) (Asset, error) {
	switch {
	case IsVideo(input):
		target := filepath.Join(workDir, "audio.wav")
		if err := n.transcoder.ToWAV(ctx, input, target); err != nil {
			return Asset{}, fmt.Errorf("extract audio from video: %w", err)
		}
		return n.describe(ctx, target)

	case IsAudio(input):
		target := filepath.Join(workDir, "audio.wav")
		if err := n.transcoder.ToWAV(ctx, input, target); err != nil {
			info, statErr := os.Stat(input)
			if statErr != nil {
				return Asset{}, fmt.Errorf("convert audio: %w", err)
			}
			if info.Size() > n.maxBytes {
				return Asset{}, fmt.Errorf("convert audio (original is %d bytes, too large to upload unconverted): %w",
					info.Size(), err)
			}
			fmt.Fprintf(n.warn, "Warning: audio conversion failed, using original file as-is: %v\n", err)
			return n.describe(ctx, input)
		}
		return n.describe(ctx, target)

	default:
		return Asset{}, fmt.Errorf("%w: %s", ErrUnsupportedSource, filepath.Ext(input))
	}
}

// describe stats and probes a prepared file.
func (n *Normalizer) describe(ctx context.Context, path string) (Asset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Asset{}, fmt.Errorf("stat prepared audio: %w", err)
	}

	duration, err := n.prober.Duration(ctx, path)
	if err != nil {
		fmt.Fprintf(n.warn, "Warning: could not determine duration, using single-chunk plan: %v\n", err)
		duration = 0
	}

	return Asset{Path: path, Duration: duration, Size: info.Size()}, nil
}
