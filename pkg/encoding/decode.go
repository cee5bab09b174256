package encoding

import "strings"

// ReplacementLog counts, per source byte, how many bytes were rewritten
// during a decode pass. It covers both table hits and fallback
// substitutions. Purely diagnostic: nothing dispatches on it.
type ReplacementLog map[byte]int

// Total returns the number of rewritten bytes across the whole pass.
func (l ReplacementLog) Total() int {
	n := 0
	for _, c := range l {
		n += c
	}
	return n
}

// decodeTable rewrites b as UTF-8 under the given single-byte table.
// ASCII passes through verbatim; high bytes come from the table or, when
// unmapped, become the fallback scalar. Every input byte yields exactly one
// output rune, so the output rune count always equals len(b).
func decodeTable(b []byte, m *byteMap, fallback rune) (string, ReplacementLog) {
	var sb strings.Builder
	sb.Grow(len(b))
	log := make(ReplacementLog)

	for _, c := range b {
		if c < 0x80 {
			sb.WriteByte(c)
			continue
		}
		if r := m[c]; r != 0 {
			sb.WriteRune(r)
		} else {
			sb.WriteRune(fallback)
		}
		log[c]++
	}

	return sb.String(), log
}
