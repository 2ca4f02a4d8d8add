package domain

// RowOutcome records what a cleaning rule did to one input row.
// Coercion failures are outcomes, not errors.
type RowOutcome struct {
	Row    int    `json:"row"`
	Kept   bool   `json:"kept"`
	Reason string `json:"reason,omitempty"`
}

// CleanReport aggregates row outcomes for one clean stage
type CleanReport struct {
	InputRows    int            `json:"input_rows"`
	KeptRows     int            `json:"kept_rows"`
	DroppedRows  int            `json:"dropped_rows"`
	FilledValues int            `json:"filled_values,omitempty"`
	Reordered    bool           `json:"reordered,omitempty"`
	DropReasons  map[string]int `json:"drop_reasons,omitempty"`
}

// NewCleanReport summarizes a slice of row outcomes
func NewCleanReport(outcomes []RowOutcome) CleanReport {
	r := CleanReport{InputRows: len(outcomes), DropReasons: make(map[string]int)}
	for _, o := range outcomes {
		if o.Kept {
			r.KeptRows++
			continue
		}
		r.DroppedRows++
		r.DropReasons[o.Reason]++
	}
	return r
}
