package textnorm

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"cinepulse/pkg/contracts/domain"
)

// Tally concatenates the cleaned comments into one corpus, segments it and
// counts token frequencies. Single-rune and whitespace-only tokens are skipped.
func Tally(comments []string, seg Segmenter) domain.TokenTable {
	if seg == nil {
		seg = ScriptSegmenter{}
	}

	corpus := norm.NFKC.String(strings.Join(comments, " "))
	table := domain.TokenTable{Counts: make(map[string]int)}
	for _, tok := range seg.Segment(corpus) {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if !keepToken(tok) {
			continue
		}
		table.Counts[tok]++
		table.TotalTokens++
	}
	return table
}

func keepToken(tok string) bool {
	return tok != "" && utf8.RuneCountInString(tok) > 1
}
