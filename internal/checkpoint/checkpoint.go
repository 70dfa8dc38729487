package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/hbadr/go-scribe/internal/chunk"
)

// Segment is one timestamped span of transcript text, chunk-local.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Metadata carries the structured part of a chunk's API response.
type Metadata struct {
	Segments []Segment       `json:"segments,omitempty"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

// Chunk is the durable record of one planned chunk and its result.
type Chunk struct {
	Index       int       `json:"index"`
	Start       float64   `json:"start_time"`
	Duration    float64   `json:"duration"`
	Path        string    `json:"file_path"`
	Transcribed bool      `json:"transcribed"`
	Transcript  *string   `json:"transcript"`
	Metadata    *Metadata `json:"metadata"`
}

// Checkpoint is the on-disk resume state for one input file.
type Checkpoint struct {
	InputPath string  `json:"input_path"`
	Chunks    []Chunk `json:"chunks"`
}

// New builds a fresh checkpoint from a chunk plan.
func New(inputPath string, plan chunk.Plan) *Checkpoint {
	cp := &Checkpoint{InputPath: inputPath, Chunks: make([]Chunk, 0, len(plan))}
	for _, spec := range plan {
		cp.Chunks = append(cp.Chunks, Chunk{
			Index:    spec.Index,
			Start:    spec.Start,
			Duration: spec.Duration,
			Path:     spec.Path,
		})
	}
	return cp
}

// Pending returns the chunks that still need transcription, in index order.
func (cp *Checkpoint) Pending() []Chunk {
	var pending []Chunk
	for _, c := range cp.Chunks {
		if !c.Transcribed {
			pending = append(pending, c)
		}
	}
	return pending
}

// Completed returns how many chunks are already transcribed.
func (cp *Checkpoint) Completed() int {
	n := 0
	for _, c := range cp.Chunks {
		if c.Transcribed {
			n++
		}
	}
	return n
}

// Fingerprint hashes a file's contents for checkpoint identification.
// Returns the first 16 hex characters of the SHA256 digest.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 -- path is the user's input file
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil))[:16], nil
}
