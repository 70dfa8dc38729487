// Package export renders a finished transcript to its output formats.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hbadr/go-scribe/internal/format"
	"github.com/hbadr/go-scribe/internal/stitch"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatSRT  = "srt"
	FormatVTT  = "vtt"
)

var (
	// ErrUnknownFormat reports a format name outside the supported set.
	ErrUnknownFormat = errors.New("unknown output format")

	// ErrNoSegments means a subtitle format was requested but the
	// transcript carries no timed segments to render.
	ErrNoSegments = errors.New("transcript has no timed segments")
)

// Document is the transcript to export.
type Document struct {
	Text     string           `json:"text"`
	Language string           `json:"language,omitempty"`
	Duration float64          `json:"duration,omitempty"`
	Segments []stitch.Segment `json:"segments,omitempty"`
}

// Extension returns the file extension for a format, without the dot.
func Extension(formatName string) (string, error) {
	switch formatName {
	case FormatText:
		return "txt", nil
	case FormatJSON, FormatSRT, FormatVTT:
		return formatName, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, formatName)
	}
}

// Write renders doc to w in the named format.
func Write(w io.Writer, doc Document, formatName string) error {
	switch formatName {
	case FormatText:
		return WriteText(w, doc)
	case FormatJSON:
		return WriteJSON(w, doc)
	case FormatSRT:
		return WriteSRT(w, doc)
	case FormatVTT:
		return WriteVTT(w, doc)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, formatName)
	}
}

// WriteText writes the plain transcript with a trailing newline.
func WriteText(w io.Writer, doc Document) error {
	_, err := io.WriteString(w, strings.TrimRight(doc.Text, "\n")+"\n")
	return err
}

// WriteJSON writes the full document as indented JSON.
func WriteJSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(doc)
}

// WriteSRT writes SubRip subtitles: 1-based cue numbers and
// comma-millisecond timestamps.
func WriteSRT(w io.Writer, doc Document) error {
	if len(doc.Segments) == 0 {
		return ErrNoSegments
	}

	var b strings.Builder
	for i, seg := range doc.Segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1,
			format.TimestampSRT(seg.Start),
			format.TimestampSRT(seg.End),
			strings.TrimSpace(seg.Text),
		)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteVTT writes WebVTT subtitles.
func WriteVTT(w io.Writer, doc Document) error {
	if len(doc.Segments) == 0 {
		return ErrNoSegments
	}

	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, seg := range doc.Segments {
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n",
			format.TimestampVTT(seg.Start),
			format.TimestampVTT(seg.End),
			strings.TrimSpace(seg.Text),
		)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
