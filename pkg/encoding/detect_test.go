package encoding

import "testing"

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
		want  Encoding
	}{
		{
			name:  "empty buffer is utf8",
			input: []byte{},
			want:  UTF8,
		},
		{
			name:  "pure ascii is utf8",
			input: []byte("hello world"),
			want:  UTF8,
		},
		{
			name:  "valid multibyte utf8 wins over latin1",
			input: []byte("café"),
			want:  UTF8,
		},
		{
			name:  "latin1 senor",
			input: []byte("Se\xF1or"),
			want:  Latin1,
		},
		{
			name:  "windows1252 smart quotes",
			input: []byte("Smart \x93quotes\x94"),
			want:  Windows1252,
		},
		{
			name:  "copyright and enye stay latin1",
			input: []byte("This symbol\xA9 with Se\xF1or"),
			want:  Latin1,
		},
		{
			name:  "win1252 specific byte outranks latin1 range",
			input: []byte("\x93\xE9"),
			want:  Windows1252,
		},
		{
			name:  "euro sign byte",
			input: []byte("price \x80 50"),
			want:  Windows1252,
		},
		{
			name:  "byte undefined in both tables",
			input: []byte{0x81},
			want:  Unknown,
		},
		{
			name:  "only undefined control range bytes",
			input: []byte{'a', 0x8D, 0x90, 'b'},
			want:  Unknown,
		},
		{
			name:  "bare continuation byte plus high range",
			input: []byte{0x81, 0xA9},
			want:  Latin1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.input); got != tt.want {
				t.Errorf("Detect(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestDetectString(t *testing.T) {
	t.Parallel()

	if got := DetectString("Se\xF1or"); got != Latin1 {
		t.Errorf("DetectString = %s, want %s", got, Latin1)
	}
}

func TestParseEncoding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want Encoding
		ok   bool
	}{
		{"utf-8", UTF8, true},
		{"WIN1252", Windows1252, true},
		{"latin1", Latin1, true},
		{"ISO-8859-1", Latin1, true},
		{"shift-jis", Unknown, false},
		{"", Unknown, false},
	}

	for _, tt := range tests {
		got, ok := ParseEncoding(tt.name)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseEncoding(%q) = (%s, %v), want (%s, %v)", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}
