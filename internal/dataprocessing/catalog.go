package dataprocessing

import (
	"strings"

	"cinepulse/pkg/contracts/domain"
)

// Catalog coercion bounds
const (
	MinRating = 0.0
	MaxRating = 10.0
	MinYear   = 1900
	MaxYear   = 2025
)

// Catalog drop reasons
const (
	ReasonInvalidRating      = "invalid_rating"
	ReasonRatingOutOfRange   = "rating_out_of_range"
	ReasonInvalidRatingCount = "invalid_rating_count"
	ReasonInvalidYear        = "invalid_year"
	ReasonYearOutOfRange     = "year_out_of_range"
)

// CatalogResult is the cleaned catalog with per-row outcomes
type CatalogResult struct {
	Rows     []domain.CatalogRow `json:"rows"`
	Outcomes []domain.RowOutcome `json:"-"`
	Report   domain.CleanReport  `json:"report"`
}

// CleanCatalog keeps {title, rating, rating_count, year}, coerces each value
// and drops rows that fail coercion or fall outside the bounds. Kept rows are
// re-indexed contiguously from zero.
func CleanCatalog(f *domain.Frame) (*CatalogResult, error) {
	if f.Empty() {
		return nil, ErrNoData
	}
	cols, err := resolveColumns(f,
		columnSpec{"title", TitleColumns},
		columnSpec{"rating", RatingColumns},
		columnSpec{"rating_count", RatingCountColumns},
		columnSpec{"year", YearColumns},
	)
	if err != nil {
		return nil, err
	}

	res := &CatalogResult{
		Rows:     make([]domain.CatalogRow, 0, len(f.Rows)),
		Outcomes: make([]domain.RowOutcome, len(f.Rows)),
	}
	for i := range f.Rows {
		row, reason := coerceCatalogRow(f, i, cols)
		if reason != "" {
			res.Outcomes[i] = domain.RowOutcome{Row: i, Reason: reason}
			continue
		}
		res.Outcomes[i] = domain.RowOutcome{Row: i, Kept: true}
		res.Rows = append(res.Rows, row)
	}
	res.Report = domain.NewCleanReport(res.Outcomes)
	return res, nil
}

func coerceCatalogRow(f *domain.Frame, i int, cols map[string]int) (domain.CatalogRow, string) {
	row := domain.CatalogRow{Title: strings.TrimSpace(f.Cell(i, cols["title"]))}

	rating, ok := parseNumber(f.Cell(i, cols["rating"]))
	if !ok {
		return row, ReasonInvalidRating
	}
	if rating < MinRating || rating > MaxRating {
		return row, ReasonRatingOutOfRange
	}
	row.Rating = rating

	count, ok := parseCount(f.Cell(i, cols["rating_count"]))
	if !ok {
		return row, ReasonInvalidRatingCount
	}
	row.RatingCount = count

	year, ok := parseInteger(f.Cell(i, cols["year"]))
	if !ok {
		return row, ReasonInvalidYear
	}
	if year < MinYear || year > MaxYear {
		return row, ReasonYearOutOfRange
	}
	row.Year = int(year)

	return row, ""
}
