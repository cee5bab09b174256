package encoding

import (
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
		table *byteMap
		want  string
		log   ReplacementLog
	}{
		{
			name:  "ascii passthrough",
			input: []byte("plain ascii text"),
			table: &latin1Map,
			want:  "plain ascii text",
			log:   ReplacementLog{},
		},
		{
			name:  "latin1 senor",
			input: []byte("Se\xF1or"),
			table: &latin1Map,
			want:  "Señor",
			log:   ReplacementLog{0xF1: 1},
		},
		{
			name:  "windows1252 smart quotes",
			input: []byte("Smart \x93quotes\x94"),
			table: &windows1252Map,
			want:  "Smart “quotes”",
			log:   ReplacementLog{0x93: 1, 0x94: 1},
		},
		{
			name:  "unmapped byte becomes fallback",
			input: []byte("a\x81b"),
			table: &latin1Map,
			want:  "a�b",
			log:   ReplacementLog{0x81: 1},
		},
		{
			name:  "repeated bytes are counted",
			input: []byte("\xE9\xE9\xE9"),
			table: &latin1Map,
			want:  "ééé",
			log:   ReplacementLog{0xE9: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, log := decodeTable(tt.input, tt.table, utf8.RuneError)
			if got != tt.want {
				t.Errorf("decodeTable() = %q, want %q", got, tt.want)
			}
			if diff := cmp.Diff(tt.log, log); diff != "" {
				t.Errorf("replacement log mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeTableRuneCountEqualsByteCount(t *testing.T) {
	t.Parallel()

	inputs := [][]byte{
		[]byte(""),
		[]byte("ascii"),
		[]byte("Se\xF1or"),
		{0x80, 0x81, 0x9D, 0xA0, 0xFF, 'x'},
	}

	for _, in := range inputs {
		for name, table := range map[string]*byteMap{"latin1": &latin1Map, "windows1252": &windows1252Map} {
			out, _ := decodeTable(in, table, utf8.RuneError)
			if got := utf8.RuneCountInString(out); got != len(in) {
				t.Errorf("%s: decodeTable(%q) has %d runes, want %d", name, in, got, len(in))
			}
		}
	}
}

func TestDecodeTableCustomFallback(t *testing.T) {
	t.Parallel()

	got, _ := decodeTable([]byte{0x90}, &windows1252Map, '?')
	if got != "?" {
		t.Errorf("decodeTable with '?' fallback = %q, want %q", got, "?")
	}
}
