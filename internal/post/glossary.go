package post

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// Glossary maps source terms to their canonical replacements.
type Glossary map[string]string

// LoadGlossary reads a glossary file.
// Format: one "term => replacement" per line; # comments and lines
// without the separator are skipped. A missing file yields an empty
// glossary, matching the behavior of an absent --glossary flag.
func LoadGlossary(path string) (Glossary, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from a user flag
	if err != nil {
		if os.IsNotExist(err) {
			return Glossary{}, nil
		}
		return nil, fmt.Errorf("open glossary: %w", err)
	}
	defer func() { _ = f.Close() }()

	g := Glossary{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		term, replacement, ok := strings.Cut(line, "=>")
		if !ok {
			continue
		}
		term = strings.TrimSpace(term)
		replacement = strings.TrimSpace(replacement)
		if term != "" {
			g[term] = replacement
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read glossary: %w", err)
	}
	return g, nil
}

// Apply substitutes every glossary term in the text.
// Matching is case-insensitive; longer terms are applied first so an
// overlapping shorter term never clobbers part of a longer match.
func (g Glossary) Apply(text string) string {
	if len(g) == 0 {
		return text
	}

	terms := make([]string, 0, len(g))
	for term := range g {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if len(terms[i]) != len(terms[j]) {
			return len(terms[i]) > len(terms[j])
		}
		return terms[i] < terms[j] // Stable order for equal lengths
	})

	for _, term := range terms {
		re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(term))
		if err != nil {
			continue
		}
		text = re.ReplaceAllString(text, g[term])
	}
	return text
}
