package domain

import (
	"errors"
	"strings"
)

// PayloadKind tags the shape of an ingested payload
type PayloadKind string

const (
	PayloadKindTable PayloadKind = "table"
	PayloadKindText  PayloadKind = "text"
)

// Payload validation errors
var (
	ErrEmptyPayload   = errors.New("payload is empty")
	ErrUnknownPayload = errors.New("unknown payload kind")
)

// Frame is a table of string cells addressed by named columns, exactly as ingested.
// Rows may be ragged; missing trailing cells read as empty strings.
type Frame struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// NewFrame creates a frame with the given header
func NewFrame(columns ...string) *Frame {
	return &Frame{Columns: columns, Rows: make([][]string, 0)}
}

// Append adds a row to the frame
func (f *Frame) Append(cells ...string) {
	f.Rows = append(f.Rows, cells)
}

// Empty reports whether the frame has no columns or no rows
func (f *Frame) Empty() bool {
	return f == nil || len(f.Columns) == 0 || len(f.Rows) == 0
}

// Cell returns the value at row i, column j, or "" when the row is short
func (f *Frame) Cell(i, j int) string {
	if i < 0 || i >= len(f.Rows) || j < 0 || j >= len(f.Rows[i]) {
		return ""
	}
	return f.Rows[i][j]
}

// ColumnIndex returns the index of the first column whose normalized header
// matches one of the given names, or -1.
func (f *Frame) ColumnIndex(names ...string) int {
	for j, col := range f.Columns {
		norm := NormalizeHeader(col)
		for _, name := range names {
			if norm == NormalizeHeader(name) {
				return j
			}
		}
	}
	return -1
}

// Clone returns a deep copy of the frame
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	out := &Frame{
		Columns: append([]string(nil), f.Columns...),
		Rows:    make([][]string, len(f.Rows)),
	}
	for i, row := range f.Rows {
		out.Rows[i] = append([]string(nil), row...)
	}
	return out
}

// NormalizeHeader lower-cases a header and folds spaces and dashes to underscores
func NormalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(h)
}

// Payload is the materialized input handed to the pipeline on load.
// Exactly one of Table or Text is set, according to Kind.
type Payload struct {
	Kind   PayloadKind `json:"kind"`
	Table  *Frame      `json:"table,omitempty"`
	Text   []string    `json:"text,omitempty"`
	Source string      `json:"source,omitempty"`
}

// TablePayload wraps a frame as a payload
func TablePayload(f *Frame) Payload {
	return Payload{Kind: PayloadKindTable, Table: f}
}

// TextPayload wraps a sequence of raw strings as a payload
func TextPayload(lines []string) Payload {
	return Payload{Kind: PayloadKindText, Text: lines}
}

// Validate checks the payload is well-formed and non-empty
func (p Payload) Validate() error {
	switch p.Kind {
	case PayloadKindTable:
		if p.Table.Empty() {
			return ErrEmptyPayload
		}
	case PayloadKindText:
		if len(p.Text) == 0 {
			return ErrEmptyPayload
		}
	default:
		return ErrUnknownPayload
	}
	return nil
}

// Len returns the number of rows or text entries
func (p Payload) Len() int {
	if p.Kind == PayloadKindText {
		return len(p.Text)
	}
	if p.Table == nil {
		return 0
	}
	return len(p.Table.Rows)
}

// Clone returns a deep copy so callers cannot mutate stored state
func (p Payload) Clone() Payload {
	out := Payload{Kind: p.Kind, Source: p.Source, Table: p.Table.Clone()}
	if p.Text != nil {
		out.Text = append([]string(nil), p.Text...)
	}
	return out
}
