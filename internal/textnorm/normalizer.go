package textnorm

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"cinepulse/pkg/contracts/domain"
)

// DefaultStopWords is the fixed stop-word set removed from comments
var DefaultStopWords = []string{"的", "了", "是", "我", "也", "很", "不"}

// Drop reasons reported for comments that do not survive cleaning
const (
	ReasonEmptyAfterClean = "empty_after_clean"
)

// Normalizer strips punctuation and stop words from raw comment strings
type Normalizer struct {
	words map[string]struct{}
	runes map[rune]struct{}
}

// New creates a normalizer for the given stop words, or DefaultStopWords when none are given
func New(stopWords ...string) *Normalizer {
	if len(stopWords) == 0 {
		stopWords = DefaultStopWords
	}
	n := &Normalizer{
		words: make(map[string]struct{}, len(stopWords)),
		runes: make(map[rune]struct{}),
	}
	for _, w := range stopWords {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		n.words[w] = struct{}{}
		// Han text is not space-delimited, so single ideograph stop words
		// are removed wherever they occur.
		if r, size := utf8.DecodeRuneInString(w); size == len(w) && unicode.Is(unicode.Han, r) {
			n.runes[r] = struct{}{}
		}
	}
	return n
}

// IsStopWord reports whether tok is in the stop-word set
func (n *Normalizer) IsStopWord(tok string) bool {
	_, ok := n.words[strings.ToLower(tok)]
	return ok
}

// Clean normalizes a single comment. The result may be empty.
func (n *Normalizer) Clean(text string) string {
	text = norm.NFKC.String(text)

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if isWordRune(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}

	fields := strings.Fields(b.String())
	kept := fields[:0]
	for _, f := range fields {
		if n.IsStopWord(f) {
			continue
		}
		if f = n.stripStopRunes(f); f != "" {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, " ")
}

// CleanAll cleans every comment, dropping the ones that become empty.
// Original order is preserved; one outcome is reported per input entry.
func (n *Normalizer) CleanAll(comments []string) ([]string, []domain.RowOutcome) {
	cleaned := make([]string, 0, len(comments))
	outcomes := make([]domain.RowOutcome, len(comments))
	for i, c := range comments {
		out := n.Clean(c)
		if out == "" {
			outcomes[i] = domain.RowOutcome{Row: i, Reason: ReasonEmptyAfterClean}
			continue
		}
		outcomes[i] = domain.RowOutcome{Row: i, Kept: true}
		cleaned = append(cleaned, out)
	}
	return cleaned, outcomes
}

func (n *Normalizer) stripStopRunes(s string) string {
	if len(n.runes) == 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if _, stop := n.runes[r]; stop {
			return -1
		}
		return r
	}, s)
}

// isWordRune matches the Unicode \w class: letters, digits, marks and underscore
func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r)
}
