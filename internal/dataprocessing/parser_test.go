package dataprocessing

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"cinepulse/pkg/contracts/domain"
)

// buildWorkbook writes rows into a workbook whose first sheet is empty, so
// the parser has to skip to the sheet holding the data.
func buildWorkbook(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	_, err := f.NewSheet("Top250")
	require.NoError(t, err)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Top250", cell, &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParseXLSX(t *testing.T) {
	data := buildWorkbook(t, [][]interface{}{
		{"电影名字", "评分", "评分人数", "年份"},
		{"肖申克的救赎", 9.7, 2900000, 1994},
		{},
		{"霸王别姬", 9.6, 2100000, 1993},
	})

	payload, err := ParsePayload(bytes.NewReader(data), "top250.xlsx", domain.PayloadKindTable)
	require.NoError(t, err)

	assert.Equal(t, domain.PayloadKindTable, payload.Kind)
	assert.Equal(t, "top250.xlsx", payload.Source)
	assert.Equal(t, []string{"电影名字", "评分", "评分人数", "年份"}, payload.Table.Columns)
	require.Len(t, payload.Table.Rows, 2, "blank rows are skipped")
	assert.Equal(t, "霸王别姬", payload.Table.Cell(1, 0))
	assert.Equal(t, "9.6", payload.Table.Cell(1, 1))
}

func TestParseCSV(t *testing.T) {
	input := "\ufeffPeriod,Top_10_Gross,Overall_Gross,Releases\n" +
		"Jan 5,\"$1,234.50\",\"$9,000\",12\n" +
		"Jan 12,,\"$9,500\",\n"

	payload, err := ParsePayload(strings.NewReader(input), "france.csv", domain.PayloadKindTable)
	require.NoError(t, err)

	assert.Equal(t, "Period", payload.Table.Columns[0], "byte order mark stripped")
	require.Len(t, payload.Table.Rows, 2)
	assert.Equal(t, "$1,234.50", payload.Table.Cell(0, 1))
	assert.Equal(t, "", payload.Table.Cell(1, 1))
}

func TestParseTextAndComments(t *testing.T) {
	payload, err := ParsePayload(strings.NewReader("好看！\r\n\r\n  \nGreat movie\n"), "comments.txt", domain.PayloadKindText)
	require.NoError(t, err)
	assert.Equal(t, []string{"好看！", "Great movie"}, payload.Text)

	csvInput := "user,comment\nalice,第一条\nbob,\ncarol,third\n"
	payload, err = ParsePayload(strings.NewReader(csvInput), "comments.csv", domain.PayloadKindText)
	require.NoError(t, err)
	assert.Equal(t, domain.PayloadKindText, payload.Kind)
	assert.Equal(t, []string{"第一条", "third"}, payload.Text)
}

func TestParsePayloadErrors(t *testing.T) {
	_, err := ParsePayload(strings.NewReader("a line"), "notes.txt", domain.PayloadKindTable)
	assert.ErrorIs(t, err, ErrWrongPayloadKind)

	_, err = ParsePayload(strings.NewReader("title,rating\n"), "empty.csv", domain.PayloadKindTable)
	assert.ErrorIs(t, err, ErrNoData)

	_, err = ParsePayload(strings.NewReader("user,text\nalice,hi\n"), "c.csv", domain.PayloadKindText)
	assert.ErrorIs(t, err, ErrMissingColumn)

	_, err = ParsePayload(bytes.NewReader([]byte{0xff, 0xfe, 0x00, 0x01}), "blob", domain.PayloadKindTable)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		head     string
		want     Format
	}{
		{"csv extension", "a.CSV", "", FormatCSV},
		{"xlsx extension", "a.xlsx", "", FormatXLSX},
		{"zip magic", "upload", "PK\x03\x04rest", FormatXLSX},
		{"comma header", "upload", "a,b,c\n1,2,3", FormatCSV},
		{"plain text", "upload", "just words\nmore words", FormatText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFormat(tt.filename, []byte(tt.head))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
