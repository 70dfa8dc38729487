package media

import "errors"

// ErrToolNotFound indicates ffmpeg or ffprobe is not installed and auto-download failed.
var ErrToolNotFound = errors.New("ffmpeg tools not found")

// ErrUnsupportedPlatform indicates the OS/architecture is not supported for auto-download.
var ErrUnsupportedPlatform = errors.New("unsupported platform for FFmpeg auto-download")

// ErrChecksumMismatch indicates a downloaded file's checksum verification failed.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// ErrDownloadFailed indicates a file download could not be completed.
var ErrDownloadFailed = errors.New("download failed")

// ErrUnsupportedSource indicates the input file extension is neither audio nor video.
var ErrUnsupportedSource = errors.New("unsupported source format")

// ErrTranscodeFailed indicates ffmpeg could not convert the input to WAV.
var ErrTranscodeFailed = errors.New("audio conversion failed")
