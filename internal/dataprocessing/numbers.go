package dataprocessing

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

var countSuffixes = []string{"人评价", "人评分", "votes", "vote", "人"}

// parseNumber parses a plain decimal cell. Thousands separators are allowed.
func parseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// parseMoney strips currency symbols, separators and whitespace before parsing
func parseMoney(s string) (float64, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Sc, r) || unicode.IsSpace(r) || r == ',' || r == '_' {
			return -1
		}
		return r
	}, s)
	for _, code := range []string{"USD", "US", "RMB", "CNY", "EUR"} {
		cleaned = strings.TrimPrefix(cleaned, code)
		cleaned = strings.TrimSuffix(cleaned, code)
	}
	return parseNumber(cleaned)
}

// parseCount parses a strictly positive integer count such as "2,345,678人评价"
func parseCount(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	for _, suffix := range countSuffixes {
		if strings.HasSuffix(strings.ToLower(s), suffix) {
			s = strings.TrimSpace(s[:len(s)-len(suffix)])
			break
		}
	}
	v, ok := parseInteger(s)
	if !ok || v <= 0 {
		return 0, false
	}
	return v, true
}

// parseInteger accepts "1994" and integral floats like "1994.0"
func parseInteger(s string) (int64, bool) {
	v, ok := parseNumber(s)
	if !ok || v != math.Trunc(v) || math.Abs(v) > 1<<53 {
		return 0, false
	}
	return int64(v), true
}
