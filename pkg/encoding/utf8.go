package encoding

import (
	"strings"
	"unicode/utf8"
)

// salvageUTF8 repairs a malformed UTF-8 buffer. Valid buffers return
// unchanged with zero substitutions. Otherwise the scan consumes the
// longest valid sequence (1-4 bytes) at each position; a byte that starts
// no valid sequence becomes the fallback scalar and the cursor advances by
// exactly one byte, so a single bad lead never swallows the bytes after it.
func salvageUTF8(b []byte, fallback rune) (string, int) {
	if utf8.Valid(b) {
		return string(b), 0
	}

	var sb strings.Builder
	sb.Grow(len(b))
	replaced := 0

	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			// DecodeRune never reads past a truncated tail; size 1 with
			// RuneError is its "no valid sequence here" signal.
			sb.WriteRune(fallback)
			replaced++
			i++
			continue
		}
		sb.WriteRune(r)
		i += size
	}

	return sb.String(), replaced
}
