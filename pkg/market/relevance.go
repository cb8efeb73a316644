package market

import (
	"sort"
	"strings"
)

// Relevance scores how well a token name matches a search term.
func Relevance(term, name string) float64 {
	term = strings.ToLower(strings.TrimSpace(term))
	name = strings.ToLower(name)
	switch {
	case term == "" || name == "":
		return 0
	case name == term:
		return 1.0
	case strings.HasPrefix(name, term):
		return 0.8
	case strings.Contains(name, term):
		return 0.5
	default:
		return 0
	}
}

// Scored pairs a record with its relevance score.
type Scored struct {
	Record Record
	Family Family
	Score  float64
}

// RankByRelevance drops non-matching candidates and orders the rest by score
// then market cap, both descending, keeping at most limit entries (limit <= 0 keeps all).
func RankByRelevance(term string, candidates []Scored, limit int) []Scored {
	out := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		c.Score = Relevance(term, c.Record.Name())
		if c.Score > 0 {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Record.MarketCap > out[j].Record.MarketCap
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
