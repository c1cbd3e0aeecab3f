package termmap

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Match filters the term map to only terms that appear in the given texts.
// Matching is case-sensitive (correct for proper nouns) and respects
// word boundaries, so "elf" never matches inside "herself".
func Match(tm TermMap, texts []string) MatchResult {
	matched := make(TermMap)

	for source, target := range tm {
		for _, text := range texts {
			if containsWord(text, source, false) {
				matched[source] = target
				break
			}
		}
	}

	return MatchResult{Matched: matched}
}

// ContainsWordFold reports whether term occurs in text as a whole word,
// ignoring case.
func ContainsWordFold(text, term string) bool {
	return containsWord(text, term, true)
}

func containsWord(text, term string, fold bool) bool {
	if term == "" {
		return false
	}
	haystack, needle := text, term
	if fold {
		haystack = strings.ToLower(text)
		needle = strings.ToLower(term)
	}

	for offset := 0; ; {
		idx := strings.Index(haystack[offset:], needle)
		if idx < 0 {
			return false
		}
		idx += offset
		if boundaryBefore(haystack, idx) && boundaryAfter(haystack, idx+len(needle)) {
			return true
		}
		offset = idx + len(needle)
	}
}

func boundaryBefore(s string, idx int) bool {
	if idx == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:idx])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(s string, idx int) bool {
	if idx >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[idx:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// Matcher answers which known terms occur in a single piece of text.
// Unlike Match it uses plain substring containment, since Thai source
// text has no word delimiters. Terms are pre-sorted so results are
// deterministic.
type Matcher struct {
	terms TermMap
	keys  []string
}

func NewMatcher(tm TermMap) *Matcher {
	keys := make([]string, 0, len(tm))
	for k := range tm {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &Matcher{terms: tm, keys: keys}
}

// FindTerms returns the source terms present in text, in sorted order.
func (m *Matcher) FindTerms(text string) []string {
	var found []string
	for _, term := range m.keys {
		if strings.Contains(text, term) {
			found = append(found, term)
		}
	}
	return found
}

// Hints returns the source and target pairs for the given terms, used
// to pin terminology in translation prompts.
func (m *Matcher) Hints(terms []string) TermMap {
	hints := make(TermMap, len(terms))
	for _, term := range terms {
		if target, ok := m.terms[term]; ok {
			hints[term] = target
		}
	}
	return hints
}
