package encoding

import "golang.org/x/text/encoding/charmap"

// byteMap maps a high byte (0x80-0xFF) to its Unicode scalar.
// Zero means the byte has no mapping under that encoding.
// Bytes below 0x80 never reach a table: the decoder passes ASCII through.
type byteMap [256]rune

var (
	latin1Map      byteMap
	windows1252Map byteMap
)

// windows1252Specials holds the printable reassignments Windows made to the
// C1 range. 0x81, 0x8D, 0x8F, 0x90 and 0x9D are intentionally absent: they
// are undefined in Windows-1252 and fall back like any other unmapped byte.
var windows1252Specials = map[byte]rune{
	0x80: '€', // EURO SIGN
	0x82: '‚', // SINGLE LOW-9 QUOTATION MARK
	0x83: 'ƒ', // LATIN SMALL LETTER F WITH HOOK
	0x84: '„', // DOUBLE LOW-9 QUOTATION MARK
	0x85: '…', // HORIZONTAL ELLIPSIS
	0x86: '†', // DAGGER
	0x87: '‡', // DOUBLE DAGGER
	0x88: 'ˆ', // MODIFIER LETTER CIRCUMFLEX ACCENT
	0x89: '‰', // PER MILLE SIGN
	0x8A: 'Š', // LATIN CAPITAL LETTER S WITH CARON
	0x8B: '‹', // SINGLE LEFT-POINTING ANGLE QUOTATION MARK
	0x8C: 'Œ', // LATIN CAPITAL LIGATURE OE
	0x8E: 'Ž', // LATIN CAPITAL LETTER Z WITH CARON
	0x91: '‘', // LEFT SINGLE QUOTATION MARK
	0x92: '’', // RIGHT SINGLE QUOTATION MARK
	0x93: '“', // LEFT DOUBLE QUOTATION MARK
	0x94: '”', // RIGHT DOUBLE QUOTATION MARK
	0x95: '•', // BULLET
	0x96: '–', // EN DASH
	0x97: '—', // EM DASH
	0x98: '˜', // SMALL TILDE
	0x99: '™', // TRADE MARK SIGN
	0x9A: 'š', // LATIN SMALL LETTER S WITH CARON
	0x9B: '›', // SINGLE RIGHT-POINTING ANGLE QUOTATION MARK
	0x9C: 'œ', // LATIN SMALL LIGATURE OE
	0x9E: 'ž', // LATIN SMALL LETTER Z WITH CARON
	0x9F: 'Ÿ', // LATIN CAPITAL LETTER Y WITH DIAERESIS
}

func init() {
	// Latin-1 defines 0xA0-0xFF as a direct window into U+00A0-U+00FF.
	// The 0x80-0x9F range is C1 control codes and stays unmapped.
	for b := 0xA0; b <= 0xFF; b++ {
		latin1Map[b] = charmap.ISO8859_1.DecodeByte(byte(b))
	}

	// Windows-1252 is Latin-1 plus the C1-range reassignments.
	for b, r := range windows1252Specials {
		windows1252Map[b] = r
	}
	for b := 0xA0; b <= 0xFF; b++ {
		windows1252Map[b] = latin1Map[b]
	}
}

// isWindows1252Specific reports whether b is one of the 0x80-0x9F bytes
// that Windows-1252 defines but Latin-1 leaves as a control code. These
// bytes are the disambiguation signal between the two encodings.
func isWindows1252Specific(b byte) bool {
	_, ok := windows1252Specials[b]
	return ok
}
