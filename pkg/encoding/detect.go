package encoding

import "unicode/utf8"

// Detect classifies a byte buffer. The candidates are tried in confidence
// order and the first match wins:
//
//  1. Valid UTF-8 wins outright, even when the buffer contains high bytes.
//  2. Any 0x80-0x9F byte that Windows-1252 defines is taken as
//     Windows-1252: under Latin-1 those bytes would be C1 control codes,
//     which real text essentially never contains.
//  3. High bytes only in 0xA0-0xFF, where the two tables agree, classify
//     as Latin-1.
//
// A buffer whose high bytes are all unmapped control-range bytes returns
// Unknown; callers must leave such input untouched.
func Detect(b []byte) Encoding {
	if utf8.Valid(b) {
		return UTF8
	}

	var win1252Specific, latin1Range bool
	for _, c := range b {
		switch {
		case c >= 0xA0:
			latin1Range = true
		case c >= 0x80 && isWindows1252Specific(c):
			win1252Specific = true
		}
	}

	switch {
	case win1252Specific:
		return Windows1252
	case latin1Range:
		return Latin1
	default:
		return Unknown
	}
}

// DetectString classifies text that was already materialized from
// mis-decoded bytes.
func DetectString(s string) Encoding {
	return Detect([]byte(s))
}
