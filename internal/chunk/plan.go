package chunk

import (
	"fmt"
	"path/filepath"
)

// MaxUploadBytes is the per-request upload ceiling of the transcription
// API. User-supplied chunk size limits are clamped to this, never raised.
const MaxUploadBytes = 25 * 1024 * 1024

// DefaultChunkSeconds is the target chunk duration when the user does
// not specify one.
const DefaultChunkSeconds = 300.0

// Spec describes one planned chunk of the source audio.
type Spec struct {
	Index    int
	Start    float64 // Offset into the source, in seconds
	Duration float64 // Chunk length in seconds; 0 means whole file
	Path     string  // Where the chunk file lives (or will live)
}

// Plan is an ordered set of chunk specs covering the source audio.
type Plan []Spec

// PlanChunks computes a deterministic chunk plan for an audio asset.
//
// The effective chunk duration is the requested duration, shrunk when
// the file's measured byte rate would push a chunk of that length over
// maxBytes. When the asset duration is unknown (0), the plan is a
// single chunk referencing the asset itself.
func PlanChunks(assetPath string, duration float64, size int64, chunkSeconds float64, maxBytes int64, workDir string) Plan {
	if duration <= 0 {
		return Plan{{Index: 0, Start: 0, Duration: 0, Path: assetPath}}
	}

	if chunkSeconds <= 0 {
		chunkSeconds = DefaultChunkSeconds
	}
	if maxBytes <= 0 || maxBytes > MaxUploadBytes {
		maxBytes = MaxUploadBytes
	}

	effective := chunkSeconds
	if size > 0 {
		bytesPerSecond := float64(size) / duration
		if bytesPerSecond > 0 {
			fromSize := float64(int(float64(maxBytes) / bytesPerSecond))
			if fromSize < effective {
				effective = fromSize
			}
		}
	}
	if effective < 1 {
		effective = 1
	}

	numChunks := int(duration/effective) + 1

	var plan Plan
	for i := 0; i < numChunks; i++ {
		start := float64(i) * effective
		if start >= duration {
			break
		}
		length := effective
		if remaining := duration - start; remaining < length {
			length = remaining
		}
		plan = append(plan, Spec{
			Index:    i,
			Start:    start,
			Duration: length,
			Path:     filepath.Join(workDir, fmt.Sprintf("chunk_%04d.wav", i)),
		})
	}
	return plan
}
