package files

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/textmend/textmend/pkg/encoding"
)

// Report describes what happened to one file.
type Report struct {
	Path     string
	Encoding encoding.Encoding
	Changed  bool
}

// Expand resolves glob patterns into a sorted, de-duplicated file list.
// Patterns that match nothing are reported as errors so typos don't turn
// into silent no-ops.
func Expand(patterns []string) ([]string, error) {
	seen := map[string]bool{}
	var out []string

	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("pattern %q matched no files", pattern)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				return nil, err
			}
			if info.IsDir() || seen[m] {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}

	sort.Strings(out)
	return out, nil
}

// FixFile repairs one file. A forced encoding other than Unknown bypasses
// detection and decodes under that table. Unless dryRun is set, changed
// content is written through a temp file in the same directory so a crash
// never leaves a half-written original.
func FixFile(path string, forced encoding.Encoding, opts *encoding.Options, dryRun bool) (Report, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var (
		rep   Report
		fixed string
	)
	if forced != encoding.Unknown {
		rep = Report{Path: path, Encoding: forced}
		fixed, err = encoding.Decode(raw, forced, opts)
	} else {
		rep = Report{Path: path, Encoding: encoding.Detect(raw)}
		fixed, err = encoding.Fix(raw, opts)
	}
	if err != nil {
		return Report{}, fmt.Errorf("failed to repair %s: %w", path, err)
	}

	if fixed == string(raw) {
		return rep, nil
	}
	rep.Changed = true

	if dryRun {
		return rep, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return Report{}, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".mend*")
	if err != nil {
		return Report{}, fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(fixed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return Report{}, fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return Report{}, err
	}
	if err := os.Chmod(tmpName, info.Mode()); err != nil {
		os.Remove(tmpName)
		return Report{}, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return Report{}, fmt.Errorf("failed to replace %s: %w", path, err)
	}

	return rep, nil
}
