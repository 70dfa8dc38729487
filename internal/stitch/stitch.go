// Package stitch assembles per-chunk transcription results into one
// transcript with source-relative timestamps.
package stitch

import (
	"sort"
	"strings"

	"github.com/hbadr/go-scribe/internal/checkpoint"
)

// Segment is one timestamped span of the final transcript, with
// timestamps relative to the start of the source media.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is the stitched transcript.
type Result struct {
	Text     string
	Segments []Segment
	Duration float64
}

// Stitch joins completed chunks into a single transcript.
//
// Text is the chunk transcripts joined in index order with runs of
// whitespace collapsed. Segment timestamps are rebased by adding each
// chunk's start offset, so they are monotonic across chunk boundaries
// as long as the per-chunk segments were. Duration prefers the probed
// source duration and falls back to the last segment's end.
func Stitch(chunks []checkpoint.Chunk, probedDuration float64) Result {
	ordered := make([]checkpoint.Chunk, len(chunks))
	copy(ordered, chunks)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	var parts []string
	var segments []Segment
	for _, c := range ordered {
		if c.Transcript != nil {
			if text := strings.TrimSpace(*c.Transcript); text != "" {
				parts = append(parts, text)
			}
		}
		if c.Metadata == nil {
			continue
		}
		for _, seg := range c.Metadata.Segments {
			text := strings.TrimSpace(seg.Text)
			if text == "" {
				continue
			}
			segments = append(segments, Segment{
				Start: c.Start + seg.Start,
				End:   c.Start + seg.End,
				Text:  text,
			})
		}
	}

	duration := probedDuration
	if duration <= 0 {
		for _, seg := range segments {
			if seg.End > duration {
				duration = seg.End
			}
		}
	}

	return Result{
		Text:     strings.Join(strings.Fields(strings.Join(parts, " ")), " "),
		Segments: segments,
		Duration: duration,
	}
}
