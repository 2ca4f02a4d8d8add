package domain

import "sort"

// TokenCount is a token with its frequency
type TokenCount struct {
	Token string `json:"token"`
	Count int    `json:"count"`
}

// TokenTable is the Item result: unique tokens mapped to their frequency
type TokenTable struct {
	Counts      map[string]int `json:"counts"`
	TotalTokens int            `json:"total_tokens"`
}

// Ordered returns the table sorted by descending count, then token
func (t *TokenTable) Ordered() []TokenCount {
	out := make([]TokenCount, 0, len(t.Counts))
	for tok, n := range t.Counts {
		out = append(out, TokenCount{Token: tok, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Token < out[j].Token
	})
	return out
}

// Top returns at most n entries of the ordered table
func (t *TokenTable) Top(n int) []TokenCount {
	ordered := t.Ordered()
	if n > 0 && len(ordered) > n {
		return ordered[:n]
	}
	return ordered
}
