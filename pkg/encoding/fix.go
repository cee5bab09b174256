package encoding

import "fmt"

// Fix returns b rewritten as valid UTF-8. The encoding is detected first;
// Latin-1 and Windows-1252 buffers are decoded through their tables, valid
// UTF-8 comes back unchanged, and an undetectable buffer is passed through
// as-is (best effort, never an error). opts may be nil.
func Fix(b []byte, opts *Options) (string, error) {
	enc := Detect(b)
	if enc == Unknown {
		if opts.verbose() {
			opts.logger().Debug("encoding undetectable, leaving input unchanged", "bytes", len(b))
		}
		return string(b), nil
	}
	return Decode(b, enc, opts)
}

// FixString is Fix for text already materialized from mis-decoded bytes.
func FixString(s string, opts *Options) (string, error) {
	return Fix([]byte(s), opts)
}

// Decode rewrites b as UTF-8 under a caller-chosen encoding, bypassing
// detection. Useful when the source charset is known, like a legacy
// Firebird database declared as WIN1252. Asking for an encoding that has
// no table yields an *EncodingError.
func Decode(b []byte, enc Encoding, opts *Options) (string, error) {
	var (
		out      string
		log      ReplacementLog
		replaced int
	)

	switch enc {
	case UTF8:
		// Detection guarantees validity on the Fix path, so this is the
		// zero-substitution fast path there; direct callers may still hand
		// us torn buffers worth salvaging.
		out, replaced = salvageUTF8(b, opts.fallback())
	case Latin1:
		out, log = decodeTable(b, &latin1Map, opts.fallback())
		replaced = log.Total()
	case Windows1252:
		out, log = decodeTable(b, &windows1252Map, opts.fallback())
		replaced = log.Total()
	default:
		return "", &EncodingError{Encoding: enc, Err: fmt.Errorf("no decode table for this encoding")}
	}

	if opts.verbose() {
		l := opts.logger().With("encoding", enc.String(), "replaced", replaced)
		if len(log) > 0 {
			l = l.With("bytes", log)
		}
		l.Debug("decoded buffer")
	}

	return out, nil
}
