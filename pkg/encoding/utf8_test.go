package encoding

import (
	"testing"
	"unicode/utf8"
)

func TestSalvageUTF8(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    []byte
		want     string
		replaced int
	}{
		{
			name:  "valid buffer untouched",
			input: []byte("café"),
			want:  "café",
		},
		{
			name:  "empty buffer",
			input: []byte{},
			want:  "",
		},
		{
			name:     "bad three byte lead before ascii",
			input:    []byte{0xE2, 'x'},
			want:     "�x",
			replaced: 1,
		},
		{
			name:     "truncated sequence at buffer end",
			input:    []byte("ab\xE2\x82"),
			want:     "ab��",
			replaced: 2,
		},
		{
			name:     "stray continuation bytes resync",
			input:    []byte{0x80, 'o', 'k', 0xBF},
			want:     "�ok�",
			replaced: 2,
		},
		{
			name:     "overlong encoding rejected per byte",
			input:    []byte{0xC0, 0xAF},
			want:     "��",
			replaced: 2,
		},
		{
			name:     "valid run survives between bad bytes",
			input:    []byte("\xF8déjà\xFE"),
			want:     "�déjà�",
			replaced: 2,
		},
		{
			name:  "literal replacement char is kept",
			input: []byte("a�b\xFF"),
			// The three bytes encoding U+FFFD are a valid sequence and must
			// not be counted as a substitution.
			want:     "a�b�",
			replaced: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, replaced := salvageUTF8(tt.input, utf8.RuneError)
			if got != tt.want {
				t.Errorf("salvageUTF8(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if replaced != tt.replaced {
				t.Errorf("salvageUTF8(%q) replaced %d bytes, want %d", tt.input, replaced, tt.replaced)
			}
			if !utf8.ValidString(got) {
				t.Errorf("salvageUTF8(%q) produced invalid UTF-8", tt.input)
			}
		})
	}
}

func TestSalvageUTF8CustomFallback(t *testing.T) {
	t.Parallel()

	got, replaced := salvageUTF8([]byte{0xFF}, '°')
	if got != "°" || replaced != 1 {
		t.Errorf("salvageUTF8 = (%q, %d), want (%q, 1)", got, replaced, "°")
	}
}
