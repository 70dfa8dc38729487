// Package ingest fetches remote audio and captions through yt-dlp so
// URLs can be transcribed like local files.
package ingest

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hbadr/go-scribe/internal/captions"
)

// Preference order when yt-dlp leaves multiple audio files behind.
var audioExtensions = []string{".m4a", ".webm", ".opus", ".mp3", ".aac", ".wav", ".ogg"}

// IsURL reports whether the input names a remote source rather than a
// local file.
func IsURL(input string) bool {
	return strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://")
}

// Locate finds the yt-dlp binary on PATH.
func Locate() (string, error) {
	path, err := exec.LookPath("yt-dlp")
	if err != nil {
		return "", fmt.Errorf("%w: install it with 'pip install yt-dlp' or your package manager", ErrDownloaderNotFound)
	}
	return path, nil
}

// CaptionsResult is what FetchCaptions produced.
type CaptionsResult struct {
	Segments []captions.Segment
	Text     string
	UsedAuto bool   // auto-generated captions, not manually authored
	VTTPath  string // downloaded subtitle file, kept for debugging
}

// Downloader wraps yt-dlp invocations.
type Downloader struct {
	binPath string
	run     commandRunner
}

// DownloaderOption configures a Downloader.
type DownloaderOption func(*Downloader)

// WithRunner replaces the command runner. Used in tests.
func WithRunner(r commandRunner) DownloaderOption {
	return func(d *Downloader) { d.run = r }
}

// NewDownloader creates a Downloader using the given yt-dlp binary.
func NewDownloader(binPath string, opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		binPath: binPath,
		run:     osRunner{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FetchCaptions downloads subtitles for url into destDir and parses
// them. Manually authored captions are preferred; auto-generated ones
// are the fallback. Returns ErrCaptionsUnavailable when neither exists
// in the requested language.
func (d *Downloader) FetchCaptions(ctx context.Context, url, language, destDir string) (CaptionsResult, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return CaptionsResult{}, fmt.Errorf("create captions dir: %w", err)
	}

	for _, mode := range []struct {
		flag string
		auto bool
	}{
		{"--write-subs", false},
		{"--write-auto-subs", true},
	} {
		args := []string{
			"--no-playlist",
			mode.flag,
			"--skip-download",
			"--sub-format", "vtt",
			"--sub-langs", language,
			"-o", filepath.Join(destDir, "%(id)s.%(ext)s"),
			url,
		}
		// yt-dlp exits zero even when no subtitles exist, and a
		// non-zero exit in one mode should not stop the other, so
		// the glob below is the real success check.
		_, _, _ = d.run.Run(ctx, d.binPath, args...)

		vttPath, ok := findVTT(destDir, language)
		if !ok {
			continue
		}

		data, err := os.ReadFile(vttPath) // #nosec G304 -- path built from destDir glob
		if err != nil {
			return CaptionsResult{}, fmt.Errorf("read captions: %w", err)
		}
		segments := captions.ParseSegments(string(data))
		if len(segments) == 0 {
			continue
		}
		return CaptionsResult{
			Segments: segments,
			Text:     captions.MergedText(segments),
			UsedAuto: mode.auto,
			VTTPath:  vttPath,
		}, nil
	}

	return CaptionsResult{}, fmt.Errorf("%w for language %q", ErrCaptionsUnavailable, language)
}

// FetchAudio downloads the best audio track for url into destDir and
// returns the path of the downloaded file.
func (d *Downloader) FetchAudio(ctx context.Context, url, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	args := []string{
		"--no-playlist",
		"-x",
		"--audio-format", "best",
		"--audio-quality", "0",
		"-o", filepath.Join(destDir, "audio.%(ext)s"),
		url,
	}
	_, stderr, err := d.run.Run(ctx, d.binPath, args...)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrDownloadFailed, lastLine(stderr))
	}

	for _, ext := range audioExtensions {
		matches, _ := filepath.Glob(filepath.Join(destDir, "audio*"+ext))
		if len(matches) > 0 {
			sort.Strings(matches)
			return matches[0], nil
		}
	}
	return "", fmt.Errorf("%w: no audio file produced", ErrDownloadFailed)
}

// findVTT locates the downloaded subtitle file, preferring an exact
// language match over any .vtt in the directory.
func findVTT(dir, language string) (string, bool) {
	for _, pattern := range []string{"*." + language + ".vtt", "*.vtt"} {
		matches, _ := filepath.Glob(filepath.Join(dir, pattern))
		if len(matches) > 0 {
			sort.Strings(matches)
			return matches[0], true
		}
	}
	return "", false
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return "no output"
}
