package textnorm

import (
	"strings"
	"unicode"
)

// Segmenter splits a corpus into word tokens
type Segmenter interface {
	Segment(text string) []string
}

// SegmenterFunc adapts a function to the Segmenter interface
type SegmenterFunc func(text string) []string

// Segment calls f(text)
func (f SegmenterFunc) Segment(text string) []string { return f(text) }

// ScriptSegmenter splits on whitespace and on changes between Han and
// non-Han script. Han runs are kept whole since ideographic text carries
// no spaces to split on.
type ScriptSegmenter struct{}

// Segment implements Segmenter
func (ScriptSegmenter) Segment(text string) []string {
	var tokens []string
	for _, field := range strings.Fields(text) {
		start := 0
		prevHan := false
		for i, r := range field {
			han := unicode.Is(unicode.Han, r)
			if i > 0 && han != prevHan {
				tokens = append(tokens, field[start:i])
				start = i
			}
			prevHan = han
		}
		tokens = append(tokens, field[start:])
	}
	return tokens
}
