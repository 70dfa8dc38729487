package chunk

import "errors"

// ErrCutFailed indicates ffmpeg could not extract a chunk from the source.
var ErrCutFailed = errors.New("chunk extraction failed")
