package dataprocessing

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"cinepulse/pkg/contracts/domain"
)

// Format is a recognized upload format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatText Format = "txt"
)

// zip local file header, the container of every xlsx workbook
var zipMagic = []byte("PK\x03\x04")

// DetectFormat picks the format from the file extension, falling back to
// sniffing the leading bytes.
func DetectFormat(filename string, head []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".txt", ".text":
		return FormatText, nil
	}

	switch {
	case bytes.HasPrefix(head, zipMagic):
		return FormatXLSX, nil
	case len(head) > 0 && !validPrefix(head):
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filename)
	case bytes.ContainsRune(firstLine(head), ','):
		return FormatCSV, nil
	case len(head) > 0:
		return FormatText, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filename)
}

// ParsePayload reads an upload into a payload of the requested kind. Tables
// come from CSV or the first non-empty XLSX sheet. Text comes from a plain
// text file, one entry per non-blank line, or from the comment column of a
// table.
func ParsePayload(r io.Reader, filename string, kind domain.PayloadKind) (domain.Payload, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return domain.Payload{}, fmt.Errorf("failed to read upload: %w", err)
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	format, err := DetectFormat(filename, head)
	if err != nil {
		return domain.Payload{}, err
	}

	var payload domain.Payload
	switch format {
	case FormatText:
		if kind == domain.PayloadKindTable {
			return domain.Payload{}, fmt.Errorf("%w: text file for a table domain", ErrWrongPayloadKind)
		}
		lines, err := ParseText(bytes.NewReader(data))
		if err != nil {
			return domain.Payload{}, err
		}
		payload = domain.TextPayload(lines)
	case FormatCSV, FormatXLSX:
		var frame *domain.Frame
		if format == FormatCSV {
			frame, err = ParseCSV(bytes.NewReader(data))
		} else {
			frame, err = ParseXLSX(bytes.NewReader(data))
		}
		if err != nil {
			return domain.Payload{}, err
		}
		if kind == domain.PayloadKindText {
			lines, err := CommentsFromFrame(frame)
			if err != nil {
				return domain.Payload{}, err
			}
			payload = domain.TextPayload(lines)
		} else {
			payload = domain.TablePayload(frame)
		}
	}
	payload.Source = filename
	return payload, nil
}

// ParseCSV reads a CSV table whose first non-empty record is the header
func ParseCSV(r io.Reader) (*domain.Frame, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	return frameFromRows(records)
}

// ParseXLSX reads the first sheet that has any data
func ParseXLSX(r io.Reader) (*domain.Frame, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			continue
		}
		if frame, err := frameFromRows(rows); err == nil {
			return frame, nil
		}
	}
	return nil, fmt.Errorf("%w: workbook has no sheet with a header and rows", ErrNoData)
}

// ParseText returns the non-blank lines of a text corpus
func ParseText(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if len(lines) == 0 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read text: %w", err)
	}
	if len(lines) == 0 {
		return nil, ErrNoData
	}
	return lines, nil
}

// frameFromRows uses the first non-empty row as header and keeps every
// following row that has at least one non-blank cell.
func frameFromRows(rows [][]string) (*domain.Frame, error) {
	header := -1
	for i, row := range rows {
		if !blankRow(row) {
			header = i
			break
		}
	}
	if header < 0 {
		return nil, ErrNoData
	}

	columns := make([]string, len(rows[header]))
	for j, c := range rows[header] {
		columns[j] = strings.TrimSpace(strings.TrimPrefix(c, "\ufeff"))
	}
	frame := domain.NewFrame(columns...)
	for _, row := range rows[header+1:] {
		if blankRow(row) {
			continue
		}
		frame.Append(row...)
	}
	if frame.Empty() {
		return nil, ErrNoData
	}
	return frame, nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func firstLine(b []byte) []byte {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		return b[:i]
	}
	return b
}

// validPrefix reports whether b is valid UTF-8, ignoring a rune cut off at
// the end of a sniffed prefix
func validPrefix(b []byte) bool {
	for i := 0; i < utf8.UTFMax && i < len(b); i++ {
		if utf8.Valid(b[:len(b)-i]) {
			return true
		}
	}
	return false
}
