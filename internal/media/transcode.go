package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Transcode target: mono 16kHz PCM, the sweet spot for speech models.
const (
	targetSampleRate = 16000
	targetChannels   = 1

	// transcodeTimeout bounds a single ffmpeg conversion.
	transcodeTimeout = 5 * time.Minute
)

// Transcoder converts inputs to transcription-ready WAV via ffmpeg.
type Transcoder struct {
	ffmpegPath string
	runner     commandRunner
}

// TranscoderOption configures a Transcoder.
type TranscoderOption func(*Transcoder)

// WithTranscodeRunner sets a custom command runner (for testing).
func WithTranscodeRunner(r commandRunner) TranscoderOption {
	return func(t *Transcoder) { t.runner = r }
}

// NewTranscoder creates a Transcoder using the given ffmpeg binary.
func NewTranscoder(ffmpegPath string, opts ...TranscoderOption) *Transcoder {
	t := &Transcoder{
		ffmpegPath: ffmpegPath,
		runner:     osRunner{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ToWAV converts input (audio or video) to mono 16kHz PCM WAV at output.
// Video streams are dropped. The output is overwritten if present.
func (t *Transcoder) ToWAV(ctx context.Context, input, output string) error {
	ctx, cancel := context.WithTimeout(ctx, transcodeTimeout)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(output), 0750); err != nil { // #nosec G301 -- work dir under user output dir
		return fmt.Errorf("create output directory: %w", err)
	}

	_, stderr, err := t.runner.Run(ctx, t.ffmpegPath,
		"-i", input,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprint(targetSampleRate),
		"-ac", fmt.Sprint(targetChannels),
		"-y",
		output,
	)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: ffmpeg timed out after %v", ErrTranscodeFailed, transcodeTimeout)
		}
		return fmt.Errorf("%w: %s", ErrTranscodeFailed, tail(stderr, 3))
	}

	if _, err := os.Stat(output); err != nil {
		return fmt.Errorf("%w: output file not created", ErrTranscodeFailed)
	}

	return nil
}
