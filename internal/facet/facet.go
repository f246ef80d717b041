// Package facet holds the partial-facet heuristic used to lift autocomplete
// suggestions whose name starts with a facet term the user is still typing.
package facet

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// MatchesPartialFacet returns the first facet (in lexical order) that is no
// longer than the first query token minus one rune and that fullText starts
// with, followed by any characters and then whitespace.
func MatchesPartialFacet(queryTokens []string, fullText string, facetCounts map[string]int) (string, bool) {
	return newMatcher(queryTokens, facetCounts).match(fullText)
}

// Promote stably moves records whose lowercased name partially matches a
// facet ahead of the rest.
func Promote[T any](records []T, name func(T) string, queryTokens []string, facetCounts map[string]int) []T {
	if len(records) == 0 || len(facetCounts) == 0 {
		return records
	}

	m := newMatcher(queryTokens, facetCounts)
	matched := make([]T, 0, len(records))
	rest := make([]T, 0, len(records))
	for _, r := range records {
		if _, ok := m.match(strings.ToLower(name(r))); ok {
			matched = append(matched, r)
			continue
		}
		rest = append(rest, r)
	}
	return append(matched, rest...)
}

type facetPattern struct {
	facet string
	re    *regexp.Regexp
}

// matcher holds the compiled patterns of the facets short enough to qualify
// for one query, in lexical order.
type matcher struct {
	patterns []facetPattern
}

func newMatcher(queryTokens []string, facetCounts map[string]int) *matcher {
	m := &matcher{}
	if len(queryTokens) == 0 || len(facetCounts) == 0 {
		return m
	}

	threshold := utf8.RuneCountInString(queryTokens[0]) - 1
	if threshold < 0 {
		threshold = 0
	}

	for _, f := range sortedFacets(facetCounts) {
		if utf8.RuneCountInString(f) > threshold {
			continue
		}
		m.patterns = append(m.patterns, facetPattern{facet: f, re: partialPattern(f)})
	}
	return m
}

func (m *matcher) match(fullText string) (string, bool) {
	for _, p := range m.patterns {
		if p.re.MatchString(fullText) {
			return p.facet, true
		}
	}
	return "", false
}

func sortedFacets(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func partialPattern(f string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(f) + `(.*)\s`)
}
