package audio

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// SanitizeFilename reduces a client-supplied filename to a safe ASCII name.
// Path separators become spaces, anything outside [A-Za-z0-9._-] is dropped,
// whitespace runs collapse to "_", and leading/trailing dots and underscores
// are trimmed. The result may be empty.
func SanitizeFilename(name string) string {
	folded := norm.NFKD.String(name)

	var b strings.Builder
	for _, r := range folded {
		switch {
		case r == '/' || r == '\\':
			b.WriteByte(' ')
		case r > unicode.MaxASCII:
			// combining marks and non-latin runes left over from NFKD
		default:
			b.WriteRune(r)
		}
	}

	fields := strings.Fields(b.String())
	joined := strings.Join(fields, "_")

	var out strings.Builder
	for _, r := range joined {
		if r == '.' || r == '_' || r == '-' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out.WriteRune(r)
		}
	}
	return strings.Trim(out.String(), "._")
}
