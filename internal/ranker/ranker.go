// Package ranker orders index entries for a query. Text relevance comes
// from a case-insensitive fuzzy subsequence match over the entry name;
// usage count and recency break ties, so frequently launched applications
// float to the top of otherwise equal matches.
package ranker

import (
	"sort"
	"unicode"

	"github.com/nettle-sh/lume/internal/index"
)

// Tuning holds the match scoring constants. The exact weights are tunable;
// callers rely only on ordering properties, not on absolute scores.
type Tuning struct {
	MatchBase        int // awarded per matched rune
	ConsecutiveBonus int // extra when the previous rune matched too
	WordStartBonus   int // extra when the match lands on a word boundary
	LeadingBonus     int // extra when the match lands on the first rune
	GapPenalty       int // per skipped rune between the first and last match
}

// DefaultTuning returns the stock scoring weights.
func DefaultTuning() Tuning {
	return Tuning{
		MatchBase:        16,
		ConsecutiveBonus: 8,
		WordStartBonus:   8,
		LeadingBonus:     8,
		GapPenalty:       1,
	}
}

// Result pairs an entry with its match score for one query. Results are
// ephemeral and never persisted.
type Result struct {
	Entry index.Entry
	Score int
}

// Rank orders entries for the query. An empty query returns every entry
// ordered by usage weight alone. For a non-empty query, entries whose name
// shares no subsequence with the query are excluded entirely. The order is
// total and deterministic: score, usage count, last-used time, name, ID.
func Rank(entries []index.Entry, query string, t Tuning) []Result {
	results := make([]Result, 0, len(entries))

	if query == "" {
		for _, e := range entries {
			results = append(results, Result{Entry: e})
		}
	} else {
		for _, e := range entries {
			score, ok := Match(e.Name, query, t)
			if !ok {
				continue
			}
			results = append(results, Result{Entry: e, Score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Entry.UsageCount != b.Entry.UsageCount {
			return a.Entry.UsageCount > b.Entry.UsageCount
		}
		if a.Entry.LastUsed != b.Entry.LastUsed {
			return a.Entry.LastUsed > b.Entry.LastUsed
		}
		if a.Entry.Name != b.Entry.Name {
			return a.Entry.Name < b.Entry.Name
		}
		return a.Entry.ID < b.Entry.ID
	})
	return results
}

// Match scores a fuzzy subsequence match of query against name,
// case-insensitively. It reports false when the query is not a subsequence
// of the name. Matching is greedy left to right, which keeps scores
// deterministic; denser and more consecutive matches score higher.
func Match(name, query string, t Tuning) (int, bool) {
	if query == "" {
		return 0, true
	}

	nameRunes := []rune(name)
	queryRunes := []rune(query)

	score := 0
	qi := 0
	prevMatched := false
	firstMatch, lastMatch := -1, -1

	for ni, r := range nameRunes {
		if qi == len(queryRunes) {
			break
		}
		if unicode.ToLower(r) != unicode.ToLower(queryRunes[qi]) {
			prevMatched = false
			continue
		}

		score += t.MatchBase
		if prevMatched {
			score += t.ConsecutiveBonus
		}
		if isWordStart(nameRunes, ni) {
			score += t.WordStartBonus
		}
		if ni == 0 {
			score += t.LeadingBonus
		}

		if firstMatch == -1 {
			firstMatch = ni
		}
		lastMatch = ni
		prevMatched = true
		qi++
	}

	if qi != len(queryRunes) {
		return 0, false
	}

	gaps := (lastMatch - firstMatch + 1) - len(queryRunes)
	score -= gaps * t.GapPenalty
	if score < 1 {
		score = 1
	}
	return score, true
}

// isWordStart reports whether the rune at i begins a word: the start of the
// name, after a separator, or an upper-case rune following a lower-case one.
func isWordStart(runes []rune, i int) bool {
	if i == 0 {
		return true
	}
	prev := runes[i-1]
	switch prev {
	case ' ', '-', '_', '.', '/', '(', '[':
		return true
	}
	return unicode.IsUpper(runes[i]) && unicode.IsLower(prev)
}
