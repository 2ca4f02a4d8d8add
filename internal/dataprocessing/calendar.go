package dataprocessing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// periodKey orders calendar period labels. Year is zero when the label has none.
type periodKey struct {
	year, month, day int
}

func (k periodKey) less(o periodKey) bool {
	if k.year != o.year {
		return k.year < o.year
	}
	if k.month != o.month {
		return k.month < o.month
	}
	return k.day < o.day
}

var monthNames = map[string]int{
	"january": 1, "february": 2, "march": 3, "april": 4, "may": 5, "june": 6,
	"july": 7, "august": 8, "september": 9, "october": 10, "november": 11, "december": 12,
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "jun": 6, "jul": 7, "aug": 8,
	"sep": 9, "sept": 9, "oct": 10, "nov": 11, "dec": 12,
}

var (
	// "Jan 5", "January", "Dec 24-30", "Mar 3rd, 2019", "March 2019"
	englishPeriod = regexp.MustCompile(`^([A-Za-z]+)\.?(?:\s+(\d{1,2})(?:st|nd|rd|th)?(?:\s*[-–]\s*(\d{1,2})(?:st|nd|rd|th)?)?)?(?:,?\s+(\d{4}))?$`)
	// "1月5日", "12月", "2019年3月"
	chinesePeriod = regexp.MustCompile(`^(?:(\d{4})年)?(\d{1,2})月(?:(\d{1,2})(?:[-–](\d{1,2}))?日?)?$`)
	isoLayouts    = []string{"2006-01-02", "2006/01/02", "2006-01", "2006/01"}
	leadingMonth  = regexp.MustCompile(`^([A-Za-z]+)`)
)

// parsePeriod reports whether label is a calendar phrase and returns its key.
// A label that names a month but carries an impossible day is an error.
func parsePeriod(label string) (periodKey, bool, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return periodKey{}, false, nil
	}

	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, label); err == nil {
			return periodKey{year: t.Year(), month: int(t.Month()), day: t.Day()}, true, nil
		}
	}

	if m := chinesePeriod.FindStringSubmatch(label); m != nil {
		return buildPeriod(label, atoi(m[1]), atoi(m[2]), m[3], m[4])
	}

	if m := englishPeriod.FindStringSubmatch(label); m != nil {
		month, ok := monthNames[strings.ToLower(m[1])]
		if !ok {
			return periodKey{}, false, nil
		}
		return buildPeriod(label, atoi(m[4]), month, m[2], m[3])
	}

	// Starts with a month name but the rest does not parse
	if m := leadingMonth.FindStringSubmatch(label); m != nil {
		if _, ok := monthNames[strings.ToLower(m[1])]; ok && len(label) > len(m[1]) {
			next := label[len(m[1])]
			if next == ' ' || next == '.' {
				return periodKey{}, false, fmt.Errorf("%w: %q", ErrInvalidPeriod, label)
			}
		}
	}
	return periodKey{}, false, nil
}

func buildPeriod(label string, year, month int, startDay, endDay string) (periodKey, bool, error) {
	if month < 1 || month > 12 {
		return periodKey{}, false, fmt.Errorf("%w: %q has no month %d", ErrInvalidPeriod, label, month)
	}
	key := periodKey{year: year, month: month}
	if startDay == "" {
		return key, true, nil
	}

	limit := daysIn(year, month)
	start := atoi(startDay)
	if start < 1 || start > limit {
		return periodKey{}, false, fmt.Errorf("%w: %q has no day %d", ErrInvalidPeriod, label, start)
	}
	if endDay != "" {
		end := atoi(endDay)
		if end < 1 || end > limit {
			return periodKey{}, false, fmt.Errorf("%w: %q has no day %d", ErrInvalidPeriod, label, end)
		}
	}
	key.day = start
	return key, true, nil
}

// daysIn returns the month length; without a year February allows the 29th
func daysIn(year, month int) int {
	if year == 0 {
		year = 2024
	}
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
