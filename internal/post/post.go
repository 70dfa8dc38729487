// Package post cleans raw transcripts: whitespace normalization,
// glossary substitution, and conservative readability fixes.
package post

import (
	"regexp"
	"strings"
)

var (
	runsOfBlanks   = regexp.MustCompile(`[ \t]+`)
	runsOfNewlines = regexp.MustCompile(`\n{3,}`)
)

// NormalizeWhitespace collapses runs of spaces and tabs to one space,
// caps blank-line runs at one blank line, and trims every line and the
// whole text. It is idempotent.
func NormalizeWhitespace(text string) string {
	text = runsOfBlanks.ReplaceAllString(text, " ")
	text = runsOfNewlines.ReplaceAllString(text, "\n\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// RemoveRepeatedWords drops consecutive duplicate words within each
// line, keeping the first occurrence. Comparison is case-insensitive;
// the main audience is Arabic transcripts where ASR stutters repeat
// filler words.
func RemoveRepeatedWords(text string) string {
	if text == "" {
		return ""
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		tokens := strings.Fields(line)
		if len(tokens) == 0 {
			continue
		}
		kept := tokens[:1]
		for _, token := range tokens[1:] {
			if !strings.EqualFold(token, kept[len(kept)-1]) {
				kept = append(kept, token)
			}
		}
		lines[i] = strings.Join(kept, " ")
	}
	return strings.Join(lines, "\n")
}

// Punctuation anchor words per language. Only these get a period
// appended; anything smarter risks changing meaning.
var punctuationPatterns = map[string][]*regexp.Regexp{
	"ar": {
		regexp.MustCompile(`(\s)(شكرا|شكراً|والسلام|إن شاء الله)(\s)`),
		regexp.MustCompile(`(\s)(نعم|لا|حسناً|جيد|صحيح)(\s)`),
	},
	"en": {
		regexp.MustCompile(`(?i)(\s)(thank you|thanks|okay|yes|no)(\s)`),
	},
}

// AddMinimalPunctuation adds periods after common sentence-ending words
// when the text has almost no punctuation already. Conservative on
// purpose: it never rewrites, only appends periods.
func AddMinimalPunctuation(text, language string) string {
	// Text that already carries punctuation is left alone.
	if strings.Count(text, ".") > len(text)/100 {
		return text
	}

	for _, re := range punctuationPatterns[language] {
		text = re.ReplaceAllString(text, "$1$2.$3")
	}
	return text
}

// LightFormat applies the full readability pass for a language:
// whitespace, stutter removal, minimal punctuation, whitespace again.
func LightFormat(text, language string) string {
	if text == "" {
		return ""
	}
	text = NormalizeWhitespace(text)
	text = RemoveRepeatedWords(text)
	text = AddMinimalPunctuation(text, language)
	return NormalizeWhitespace(text)
}

// Clean post-processes a stitched transcript.
// Order: whitespace, glossary, optional light formatting, whitespace.
// With an empty glossary and lightFormat off it reduces to whitespace
// normalization, so cleaning is idempotent.
func Clean(text string, glossary Glossary, language string, lightFormat bool) string {
	if text == "" {
		return ""
	}

	text = NormalizeWhitespace(text)
	text = glossary.Apply(text)
	if lightFormat {
		text = LightFormat(text, language)
	}
	return NormalizeWhitespace(text)
}
