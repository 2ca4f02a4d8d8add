package pipeline

import (
	"cinepulse/internal/dataprocessing"
	"cinepulse/pkg/contracts/domain"
)

// clean applies the domain's cleaning transform to a raw payload. Row-level
// coercion failures are reported in the clean report, never as errors.
func (c *Controller) clean(d Domain, raw *domain.Payload) (*Cleaned, error) {
	switch d {
	case DomainCatalog:
		res, err := dataprocessing.CleanCatalog(raw.Table)
		if err != nil {
			return nil, err
		}
		return &Cleaned{Catalog: res.Rows, Report: res.Report}, nil

	case DomainRegion:
		res, err := dataprocessing.CleanRegion(raw.Table)
		if err != nil {
			return nil, err
		}
		return &Cleaned{Region: res.Points, Report: res.Report}, nil

	case DomainItem:
		res, err := dataprocessing.CleanComments(raw.Text, c.normalizer)
		if err != nil {
			return nil, err
		}
		return &Cleaned{Comments: res.Comments, Report: res.Report}, nil
	}
	return nil, NewInvalidParameterError(d, "", OpClean, "unknown domain")
}
