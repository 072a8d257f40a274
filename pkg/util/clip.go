package util

import "unicode/utf8"

// TruncationMarker is appended by Clip when text was cut.
const TruncationMarker = "\n...[truncated]"

// Clip returns the first limit characters of s, followed by TruncationMarker
// when s was longer. A non-positive limit returns s unchanged.
func Clip(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}

	n := 0
	for i := range s {
		if n == limit {
			return s[:i] + TruncationMarker
		}
		n++
	}
	return s
}
