package exporter

import (
	"math"
	"strconv"
)

// FormatFloat formats a value with at most decimals places and no trailing zeros.
// A negative decimals keeps the shortest exact representation.
func FormatFloat(f float64, decimals int) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	if decimals >= 0 {
		pow := math.Pow(10, float64(decimals))
		f = math.Round(f*pow) / pow
	}
	if f == 0 {
		return "0"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// FormatInt formats an int64 value for CSV output
func FormatInt(i int64) string {
	return strconv.FormatInt(i, 10)
}
