package routing

import (
	"strings"
	"unicode"

	"github.com/hupe1980/roundtable/core"
)

var stopwords = wordSet(`a about above after again against all also am an and any are as at be
	because been before being below between both but by can could did do does doing down during each
	few for from further had has have having he her here hers herself him himself his how i if in into
	is it its itself just let lets like me more most my myself no nor not now of off on once only or
	other our ours ourselves out over own really same she should so some such than that the their
	theirs them themselves then there these they this those through to too under until up very was
	we were what when where which while who whom why will with would you your yours yourself
	yourselves yes ok okay sure thanks thank agree agreed good great fine sounds think maybe well
	let's go next idea ideas point points`)

func wordSet(text string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, w := range strings.Fields(text) {
		set[w] = struct{}{}
	}
	return set
}

// Keywords returns the distinct, lowercased, stemmed content tokens of text
// in order of first appearance. Stopwords and one-letter tokens are dropped.
func Keywords(text string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, tok := range tokenize(text) {
		if _, stop := stopwords[tok]; stop {
			continue
		}
		s := stem(tok)
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if len([]rune(f)) < 2 {
			continue
		}
		out = append(out, f)
	}
	return out
}

// stem strips a few English suffixes so "pricing" matches "price" and
// "contracts" matches "contract".
func stem(tok string) string {
	for _, suf := range []string{"ing", "ies", "es", "ed", "s", "e"} {
		if strings.HasSuffix(tok, suf) && len(tok)-len(suf) >= 3 {
			base := strings.TrimSuffix(tok, suf)
			if suf == "ies" {
				base += "y"
			}
			return base
		}
	}
	return tok
}

func tokenSet(texts ...string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, t := range texts {
		for _, k := range Keywords(t) {
			set[k] = struct{}{}
		}
	}
	return set
}

// DetectMentions returns the participants (excluding author) that content
// mentions, either as "@id" / "@Name" or by display name as a whole word.
func DetectMentions(content, author string, participants []string, profiles map[string]core.Profile) []string {
	lower := strings.ToLower(content)
	words := map[string]struct{}{}
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '@' && r != '-' && r != '_'
	}) {
		words[w] = struct{}{}
	}
	var out []string
	for _, id := range participants {
		if id == author {
			continue
		}
		names := []string{strings.ToLower(id)}
		if p, ok := profiles[id]; ok && p.Name != "" {
			names = append(names, strings.ToLower(p.Name))
		}
		for _, n := range names {
			if mentioned(lower, words, n) {
				out = append(out, id)
				break
			}
		}
	}
	return out
}

func mentioned(lower string, words map[string]struct{}, name string) bool {
	if name == "" {
		return false
	}
	if _, ok := words["@"+name]; ok {
		return true
	}
	if strings.ContainsRune(name, ' ') {
		return strings.Contains(lower, name)
	}
	// Bare IDs like "a" are too ambiguous to match without the @ sign.
	if len([]rune(name)) < 3 {
		return false
	}
	_, ok := words[name]
	return ok
}
