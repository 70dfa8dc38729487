package pipeline

import "errors"

var (
	// ErrInputNotFound means the local input file does not exist.
	ErrInputNotFound = errors.New("input file not found")

	// ErrNoDownloader means a URL input was given but no downloader is
	// configured, usually because yt-dlp is missing.
	ErrNoDownloader = errors.New("url input requires a downloader")

	// ErrEmptyTranscript means every chunk came back without text.
	ErrEmptyTranscript = errors.New("transcription produced no text")
)
