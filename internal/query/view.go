package query

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"io"

	"ipdr-backend/internal/core"
	"ipdr-backend/internal/database"
)

// DatasetSource is the read side of the record store used by queries.
type DatasetSource interface {
	List(ctx context.Context) ([]database.Dataset, error)

	OpenRaw(ctx context.Context, id string) (io.ReadCloser, error)
}

type Engine struct {
	source DatasetSource
}

func NewEngine(source DatasetSource) *Engine {
	return &Engine{source: source}
}

type ViewResult struct {
	Columns   []string
	Rows      []map[string]any
	Page      int
	PageSize  int
	TotalRows int
}

// ViewPage returns rows [page*pageSize, (page+1)*pageSize) of the raw CSV.
// A page past the end is empty and has no columns. TotalRows is the number of
// lines in the file minus the header.
func (e *Engine) ViewPage(ctx context.Context, id string, page, pageSize int) (ViewResult, error) {
	result := ViewResult{Columns: []string{}, Rows: []map[string]any{}, Page: page, PageSize: pageSize}

	raw, err := e.source.OpenRaw(ctx, id)
	if err != nil {
		return result, err
	}
	defer raw.Close()

	reader := core.NewCSVReader(raw)
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return result, nil
		}
		return result, fmt.Errorf("%w: %v", core.ErrMalformedInput, err)
	}
	header = core.NormalizeHeader(header)

	skip := PageOffset(page, pageSize)
	for i := 0; len(result.Rows) < pageSize; i++ {
		row, err := core.ReadRow(reader, len(header))
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, err
		}
		if i < skip {
			continue
		}
		result.Rows = append(result.Rows, core.RowMap(header, row))
	}

	if len(result.Rows) > 0 {
		result.Columns = header
	}

	total, err := e.countRows(ctx, id)
	if err != nil {
		return result, err
	}
	result.TotalRows = total

	return result, nil
}

func (e *Engine) countRows(ctx context.Context, id string) (int, error) {
	raw, err := e.source.OpenRaw(ctx, id)
	if err != nil {
		return 0, err
	}
	defer raw.Close()

	lines, err := countLines(raw)
	if err != nil {
		return 0, fmt.Errorf("error counting rows of %s: %w", id, err)
	}
	return max(lines-1, 0), nil
}

// countLines counts newline-terminated lines plus a trailing unterminated one.
func countLines(r io.Reader) (int, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	buf := make([]byte, 64*1024)

	lines := 0
	var last byte = '\n'
	for {
		n, err := br.Read(buf)
		if n > 0 {
			lines += bytes.Count(buf[:n], []byte{'\n'})
			last = buf[n-1]
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	if last != '\n' {
		lines++
	}
	return lines, nil
}

// PageOffset is the number of rows before the given page. Negative inputs
// count as zero and the result saturates at math.MaxInt instead of
// overflowing.
func PageOffset(page, pageSize int) int {
	if page <= 0 || pageSize <= 0 {
		return 0
	}
	if page > math.MaxInt/pageSize {
		return math.MaxInt
	}
	return page * pageSize
}
