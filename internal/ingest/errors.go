package ingest

import "errors"

var (
	// ErrDownloaderNotFound means yt-dlp is not installed or not on PATH.
	ErrDownloaderNotFound = errors.New("yt-dlp not found")

	// ErrCaptionsUnavailable means the video has no captions in the
	// requested language, neither manual nor auto-generated.
	ErrCaptionsUnavailable = errors.New("no captions available")

	// ErrDownloadFailed means yt-dlp ran but produced no usable output.
	ErrDownloadFailed = errors.New("download failed")
)
