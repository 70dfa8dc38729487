package media

import (
	"path/filepath"
	"strings"
)

// Recognized container extensions. Everything else is rejected up front
// rather than handed to ffmpeg to fail on.
var (
	videoExts = map[string]bool{
		".mp4": true, ".mov": true, ".mkv": true,
		".avi": true, ".webm": true, ".flv": true,
	}
	audioExts = map[string]bool{
		".mp3": true, ".wav": true, ".m4a": true, ".aac": true,
		".ogg": true, ".opus": true, ".flac": true, ".wma": true,
	}
)

// IsVideo reports whether the path has a recognized video extension.
func IsVideo(path string) bool {
	return videoExts[strings.ToLower(filepath.Ext(path))]
}

// IsAudio reports whether the path has a recognized audio extension.
func IsAudio(path string) bool {
	return audioExts[strings.ToLower(filepath.Ext(path))]
}

// IsSupported reports whether the path is a recognized audio or video file.
func IsSupported(path string) bool {
	return IsAudio(path) || IsVideo(path)
}
