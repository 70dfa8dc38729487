// Package captions parses WebVTT subtitle files into timed segments
// and plain text. It handles both manually authored and auto-generated
// captions, which carry inline cue settings and styling tags.
package captions

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hbadr/go-scribe/internal/post"
)

// ErrBadTimestamp reports a cue timestamp that is not in
// HH:MM:SS.mmm or MM:SS.mmm form.
var ErrBadTimestamp = errors.New("malformed vtt timestamp")

// Segment is one caption cue with absolute timestamps in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

var (
	hmsPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2}):(\d{2})\.(\d{3})$`)
	msPattern  = regexp.MustCompile(`^(\d{1,2}):(\d{2})\.(\d{3})$`)

	headerLines    = regexp.MustCompile(`(?m)^(WEBVTT.*|STYLE.*|NOTE.*)$`)
	cueLinesHMS    = regexp.MustCompile(`(?m)^\d{1,2}:\d{2}:\d{2}\.\d{3} --> .*$`)
	cueLinesMS     = regexp.MustCompile(`(?m)^\d{1,2}:\d{2}\.\d{3} --> .*$`)
	inlineTags     = regexp.MustCompile(`<[^>]+>`)
	inlineSettings = regexp.MustCompile(`\b(align:\w+|position:\d+%|line:\d+%|size:\d+%)\b`)
)

// ParseTimestamp converts a VTT timestamp to seconds.
// Both HH:MM:SS.mmm and MM:SS.mmm are accepted.
func ParseTimestamp(s string) (float64, error) {
	s = strings.TrimSpace(s)

	if m := hmsPattern.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		mi, _ := strconv.Atoi(m[2])
		sec, _ := strconv.Atoi(m[3])
		ms, _ := strconv.Atoi(m[4])
		return float64(h)*3600 + float64(mi)*60 + float64(sec) + float64(ms)/1000, nil
	}
	if m := msPattern.FindStringSubmatch(s); m != nil {
		mi, _ := strconv.Atoi(m[1])
		sec, _ := strconv.Atoi(m[2])
		ms, _ := strconv.Atoi(m[3])
		return float64(mi)*60 + float64(sec) + float64(ms)/1000, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
}

// ParseSegments extracts the timed cues from VTT content.
//
// A line containing "-->" opens a cue; the non-empty lines that follow
// are its text. Cue settings after the end timestamp and inline markup
// are dropped, and cues whose text ends up empty are skipped. Cues with
// unparseable timestamps are skipped rather than failing the whole
// file, since auto-generated captions are not always well formed.
func ParseSegments(content string) []Segment {
	var segments []Segment
	var current *Segment
	var textLines []string

	flush := func() {
		if current == nil {
			return
		}
		text := cleanCueText(strings.Join(textLines, " "))
		if text != "" {
			current.Text = text
			segments = append(segments, *current)
		}
		current = nil
		textLines = nil
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)

		// A blank line ends the current cue, so headers and NOTE
		// blocks between cues never leak into cue text.
		if line == "" {
			flush()
			continue
		}

		if strings.Contains(line, "-->") {
			flush()

			startRaw, endRaw, _ := strings.Cut(line, "-->")
			// The end side may carry cue settings ("align:start ...");
			// only the first token is the timestamp.
			start, err := ParseTimestamp(firstField(startRaw))
			if err != nil {
				continue
			}
			end, err := ParseTimestamp(firstField(endRaw))
			if err != nil {
				continue
			}
			current = &Segment{Start: start, End: end}
			continue
		}

		if current != nil {
			textLines = append(textLines, line)
		}
	}
	flush()

	return segments
}

// Text strips all VTT structure from content and returns the caption
// text as normalized plain text. Used when timestamps are not needed.
func Text(content string) string {
	content = headerLines.ReplaceAllString(content, "")
	content = cueLinesHMS.ReplaceAllString(content, "")
	content = cueLinesMS.ReplaceAllString(content, "")
	content = inlineTags.ReplaceAllString(content, "")
	content = inlineSettings.ReplaceAllString(content, "")

	// Auto-generated captions repeat each line as cues overlap; keep
	// only the first of any consecutive identical lines.
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(lines) > 0 && lines[len(lines)-1] == line {
			continue
		}
		lines = append(lines, line)
	}
	return post.NormalizeWhitespace(strings.Join(lines, "\n"))
}

// MergedText joins segment texts into one normalized string.
func MergedText(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg.Text != "" {
			parts = append(parts, seg.Text)
		}
	}
	return post.NormalizeWhitespace(strings.Join(parts, " "))
}

func cleanCueText(text string) string {
	text = inlineTags.ReplaceAllString(text, "")
	text = inlineSettings.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

func firstField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
