// Package stream reconstructs streamed completion output. Completion services
// may deliver cumulative fragments (the full text so far) or incremental ones
// (only the new tail), and may switch style mid-stream; Merge folds either
// style into one growing string.
package stream

import (
	"strings"
	"unicode"
)

// DriftMinRunes is the buffer length below which fragments are always treated
// as incremental. Short buffers carry too little signal to tell a reformatted
// cumulative replay from a new chunk.
const DriftMinRunes = 16

// MinOverlapRunes is the shortest seam overlap that is treated as repeated
// text. Shorter matches are ordinary sub-word continuations ("Hel" + "lo").
const MinOverlapRunes = 4

// Merge folds incoming into previous. Rules, in order:
//
//  1. incoming extends previous: cumulative, incoming wins.
//  2. previous extends incoming: stale or duplicate, previous wins.
//  3. common prefix longer than half of previous: cumulative with drift, the
//     longer string wins.
//  4. incoming longer than half of previous without a usable prefix: the
//     response was reformatted, incoming replaces previous.
//  5. otherwise incoming is an incremental chunk: the longest suffix of
//     previous that prefixes incoming (at least MinOverlapRunes long) is not
//     repeated. A single space is inserted only where a sentence mark meets
//     a word with no whitespace between them; token streams split words
//     anywhere, so letters on both sides of a seam are joined as-is.
//
// Rules 3 and 4 apply only once previous holds DriftMinRunes runes.
// Duplicate delivery of a cumulative fragment is idempotent:
// Merge(Merge(p, x), x) == Merge(p, x).
func Merge(previous, incoming string) string {
	if incoming == "" {
		return previous
	}
	if previous == "" {
		return incoming
	}

	prev := []rune(previous)
	in := []rune(incoming)

	if hasPrefix(in, prev) {
		return incoming
	}
	if hasPrefix(prev, in) {
		return previous
	}

	if len(prev) >= DriftMinRunes {
		half := len(prev) / 2
		if commonPrefix(prev, in) > half {
			if len(in) > len(prev) {
				return incoming
			}
			return previous
		}
		if len(in) > half {
			return incoming
		}
	}

	overlap := suffixPrefixOverlap(prev, in)
	if overlap > 0 {
		return previous + string(in[overlap:])
	}
	if needsSpace(prev[len(prev)-1], in[0]) {
		return previous + " " + incoming
	}
	return previous + incoming
}

// MergeAll folds a sequence of fragments starting from an empty string.
func MergeAll(fragments ...string) string {
	out := ""
	for _, f := range fragments {
		out = Merge(out, f)
	}
	return out
}

func hasPrefix(s, prefix []rune) bool {
	if len(prefix) > len(s) {
		return false
	}
	for i := range prefix {
		if s[i] != prefix[i] {
			return false
		}
	}
	return true
}

func commonPrefix(a, b []rune) int {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// suffixPrefixOverlap returns the length of the longest suffix of a that is
// also a prefix of b.
func suffixPrefixOverlap(a, b []rune) int {
	for k := min(len(a), len(b)); k >= MinOverlapRunes; k-- {
		if equalRunes(a[len(a)-k:], b[:k]) {
			return k
		}
	}
	return 0
}

func equalRunes(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// needsSpace guards against gluing a new sentence or clause onto the previous one.
func needsSpace(last, first rune) bool {
	if unicode.IsSpace(last) || unicode.IsSpace(first) {
		return false
	}
	return strings.ContainsRune(".,;:!?", last) && (unicode.IsLetter(first) || unicode.IsDigit(first))
}
