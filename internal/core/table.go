package core

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

var (
	ErrMalformedInput    = errors.New("malformed input")
	ErrNoNumericFeatures = errors.New("no numeric feature columns")
)

// Table is an uploaded CSV held in memory for inference. Cells are kept as
// the raw strings from the file; numeric interpretation happens on demand.
type Table struct {
	Columns []string
	Rows    [][]string
}

// NewCSVReader returns a reader that accepts rows with fewer fields than the
// header. Use ReadRow to pad them.
func NewCSVReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	return reader
}

// ReadRow reads the next record and pads it with empty cells to width. A row
// with more fields than the header is malformed. io.EOF is returned as is.
func ReadRow(reader *csv.Reader, width int) ([]string, error) {
	row, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if len(row) > width {
		line, _ := reader.FieldPos(0)
		return nil, fmt.Errorf("%w: record on line %d has %d fields, expected at most %d", ErrMalformedInput, line, len(row), width)
	}
	for len(row) < width {
		row = append(row, "")
	}
	return row, nil
}

func ReadTable(r io.Reader) (*Table, error) {
	reader := NewCSVReader(r)

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: file is empty", ErrMalformedInput)
		}
		return nil, fmt.Errorf("%w: unable to read header: %v", ErrMalformedInput, err)
	}
	header = NormalizeHeader(header)

	table := &Table{Columns: header}
	for {
		row, err := ReadRow(reader, len(header))
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

// NormalizeHeader strips a UTF-8 BOM and surrounding whitespace from the
// header cells.
func NormalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		out[i] = strings.TrimSpace(h)
	}
	return out
}

func (t *Table) Len() int {
	return len(t.Rows)
}

func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Cell returns the value of column col in row, or "" when the column is out
// of range.
func (t *Table) Cell(row, col int) string {
	if col < 0 || col >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][col]
}

// IsNumericColumn reports whether every non-empty cell of the column parses
// as a float and at least one cell is non-empty.
func (t *Table) IsNumericColumn(col int) bool {
	seen := false
	for i := range t.Rows {
		cell := strings.TrimSpace(t.Cell(i, col))
		if cell == "" {
			continue
		}
		if _, ok := ParseNumber(cell); !ok {
			return false
		}
		seen = true
	}
	return seen
}

func (t *Table) NumericColumns() []string {
	var cols []string
	for i, c := range t.Columns {
		if t.IsNumericColumn(i) {
			cols = append(cols, c)
		}
	}
	return cols
}

// ParseNumber coerces a cell to a float. Empty and non-numeric cells are not
// coercible.
func ParseNumber(cell string) (float64, bool) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// CellValue converts a raw cell to the JSON value used in row views: nil for
// empty cells, int64 or float64 for numbers, the string otherwise.
func CellValue(cell string) any {
	trimmed := strings.TrimSpace(cell)
	if trimmed == "" {
		return nil
	}
	if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil && !strings.HasPrefix(trimmed, "+") {
		return i
	}
	if f, ok := ParseNumber(trimmed); ok && !strings.HasPrefix(trimmed, "+") {
		return f
	}
	return cell
}

// RowMap builds a column -> value map for one row.
func RowMap(columns []string, row []string) map[string]any {
	out := make(map[string]any, len(columns))
	for i, c := range columns {
		var cell string
		if i < len(row) {
			cell = row[i]
		}
		out[c] = CellValue(cell)
	}
	return out
}
