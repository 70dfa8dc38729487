package export

import "strings"

const maxFilenameLen = 120

// SanitizeFilename turns an arbitrary title into a safe filename stem.
// Path separators, shell-hostile characters, and control characters
// become underscores; overly long names are truncated.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
			b.WriteByte('_')
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}

	out := strings.Trim(b.String(), " ._")
	if runes := []rune(out); len(runes) > maxFilenameLen {
		out = string(runes[:maxFilenameLen])
	}
	if out == "" {
		return "transcript"
	}
	return out
}
