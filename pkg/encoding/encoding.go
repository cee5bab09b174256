// Package encoding detects and repairs mis-encoded single-byte text.
//
// Legacy systems (Firebird databases, exported CSVs, scraped pages) hand us
// byte streams that claim to be UTF-8 but were actually written as Latin-1
// or Windows-1252. This package classifies such buffers and rewrites them
// as proper UTF-8, substituting a fallback character for bytes that map to
// nothing under any supported encoding.
package encoding

import (
	"fmt"
	"log/slog"
	"unicode/utf8"
)

// Encoding identifies one of the supported source encodings. The set is
// closed: detection only ever distinguishes UTF-8 from the two single-byte
// Windows/ISO tables, so there is no registration mechanism.
type Encoding int

const (
	// Unknown means detection was inconclusive. It is a normal result,
	// not an error: callers should leave the input unchanged.
	Unknown Encoding = iota
	UTF8
	Latin1
	Windows1252
)

func (e Encoding) String() string {
	switch e {
	case UTF8:
		return "UTF-8"
	case Latin1:
		return "ISO-8859-1"
	case Windows1252:
		return "Windows-1252"
	default:
		return "unknown"
	}
}

// ParseEncoding resolves a configuration string (case-sensitive, the common
// aliases only) to an Encoding. Unrecognized names return Unknown and false.
func ParseEncoding(name string) (Encoding, bool) {
	switch name {
	case "UTF-8", "UTF8", "utf-8", "utf8":
		return UTF8, true
	case "ISO-8859-1", "LATIN1", "latin1", "latin-1", "iso-8859-1":
		return Latin1, true
	case "Windows-1252", "WIN1252", "windows-1252", "cp1252":
		return Windows1252, true
	default:
		return Unknown, false
	}
}

// Options controls a Detect/Fix/Decode call. The zero value (or a nil
// pointer) means quiet operation with U+FFFD as the fallback character.
type Options struct {
	// Verbose emits a diagnostic log line describing the chosen encoding
	// and the bytes that were replaced.
	Verbose bool

	// Strict is accepted but currently has no effect. It is reserved so
	// callers can already set it.
	Strict bool

	// Fallback is the scalar substituted for unmappable or invalid bytes.
	// Zero means U+FFFD.
	Fallback rune

	// Logger receives verbose diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

func (o *Options) fallback() rune {
	if o == nil || o.Fallback == 0 {
		return utf8.RuneError
	}
	return o.Fallback
}

func (o *Options) logger() *slog.Logger {
	if o == nil || o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o *Options) verbose() bool {
	return o != nil && o.Verbose
}

// EncodingError reports an unexpected internal failure while evaluating or
// decoding a buffer. Inconclusive detection is not an error; this only
// surfaces broken dispatch, such as a request to decode under an encoding
// that has no table.
type EncodingError struct {
	Encoding Encoding
	Err      error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding %s: %v", e.Encoding, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }
