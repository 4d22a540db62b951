package audio

import (
	"path/filepath"
	"regexp"
	"strings"
)

// DefaultFormat is used whenever a base64 payload does not name a usable subtype.
const DefaultFormat = "mp3"

// allowedFormats is the set of extensions the service accepts.
var allowedFormats = map[string]bool{
	"mp3": true,
	"wav": true,
	"m4a": true,
	"ogg": true,
}

// dataURLPattern matches the fixed "data:audio/<subtype>;base64" prefix.
var dataURLPattern = regexp.MustCompile(`^data:audio/([^;,]+);base64`)

// IsAllowed reports whether format (without a leading dot) is accepted.
func IsAllowed(format string) bool {
	return allowedFormats[strings.ToLower(format)]
}

// ExtensionOf returns the case-folded text after the last dot of filename,
// or "" if there is none.
func ExtensionOf(filename string) string {
	if !strings.Contains(filename, ".") {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// FormatFromDataURL derives the audio format from a data URL prefix.
// Unknown or disallowed subtypes fall back to DefaultFormat.
func FormatFromDataURL(s string) string {
	m := dataURLPattern.FindStringSubmatch(s)
	if m == nil {
		return DefaultFormat
	}
	subtype := strings.ToLower(m[1])
	if !allowedFormats[subtype] {
		return DefaultFormat
	}
	return subtype
}
