package query

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"ipdr-backend/internal/core"
	"ipdr-backend/internal/database"
	"ipdr-backend/internal/records"
)

// FileField is added to every search row and names the dataset it came from.
const FileField = "_file"

// Filter holds the conjunctive search criteria. Zero values mean "no filter".
type Filter struct {
	File      string
	Ip        string
	Msisdn    string
	MinVolume *float64
	DateFrom  *time.Time
	DateTo    *time.Time
}

type SearchResult struct {
	Rows            []map[string]any
	Page            int
	PageSize        int
	TotalFound      int
	Truncated       bool
	DatasetsScanned int
}

// Search scans raw datasets in list order and collects matching rows until
// (page+1)*pageSize matches exist. Once that many are found no further rows
// or datasets are read, so TotalFound is then a lower bound and Truncated is
// set.
func (e *Engine) Search(ctx context.Context, filter Filter, page, pageSize int) (SearchResult, error) {
	result := SearchResult{Rows: []map[string]any{}, Page: page, PageSize: pageSize}

	datasets, err := e.source.List(ctx)
	if err != nil {
		return result, err
	}

	if filter.File != "" {
		datasets = filterByFile(datasets, filter.File)
	}

	skip := PageOffset(page, pageSize)
	limit := skip + max(pageSize, 0)
	if limit < skip {
		limit = math.MaxInt
	}
	var matches []map[string]any

	for _, dataset := range datasets {
		if len(matches) >= limit {
			result.Truncated = true
			break
		}

		result.DatasetsScanned++
		found, full, err := e.searchDataset(ctx, dataset.Id, filter, limit-len(matches))
		if err != nil {
			if errors.Is(err, records.ErrNotFound) {
				continue
			}
			return result, err
		}
		matches = append(matches, found...)
		if full {
			result.Truncated = true
			break
		}
	}

	result.TotalFound = len(matches)

	start := min(skip, len(matches))
	end := start + min(max(pageSize, 0), len(matches)-start)
	result.Rows = append(result.Rows, matches[start:end]...)

	return result, nil
}

func filterByFile(datasets []database.Dataset, file string) []database.Dataset {
	for _, d := range datasets {
		if d.Id == file {
			return []database.Dataset{d}
		}
	}
	return nil
}

type rowFilter struct {
	ip, msisdn, volume, timestamp int
	filter                        Filter
}

func newRowFilter(header []string, filter Filter) rowFilter {
	idx := core.ResolveKeyColumns(header).Indices(header)
	return rowFilter{
		ip:        idx.Ip,
		msisdn:    idx.Msisdn,
		volume:    idx.Volume,
		timestamp: idx.Timestamp,
		filter:    filter,
	}
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// match applies each filter whose column was resolved in this dataset.
// Filters on unresolved columns are skipped.
func (f rowFilter) match(row []string) bool {
	if f.filter.Ip != "" && f.ip >= 0 {
		if !strings.Contains(cell(row, f.ip), f.filter.Ip) {
			return false
		}
	}

	if f.filter.Msisdn != "" && f.msisdn >= 0 {
		if !strings.Contains(cell(row, f.msisdn), f.filter.Msisdn) {
			return false
		}
	}

	if f.filter.MinVolume != nil && f.volume >= 0 {
		v, ok := core.ParseNumber(cell(row, f.volume))
		if !ok || v < *f.filter.MinVolume {
			return false
		}
	}

	if (f.filter.DateFrom != nil || f.filter.DateTo != nil) && f.timestamp >= 0 {
		ts, ok := ParseTimestamp(cell(row, f.timestamp))
		if !ok {
			return false
		}
		if f.filter.DateFrom != nil && ts.Before(*f.filter.DateFrom) {
			return false
		}
		if f.filter.DateTo != nil && ts.After(*f.filter.DateTo) {
			return false
		}
	}

	return true
}

// searchDataset returns up to limit matching rows and whether the limit was
// reached.
func (e *Engine) searchDataset(ctx context.Context, id string, filter Filter, limit int) ([]map[string]any, bool, error) {
	raw, err := e.source.OpenRaw(ctx, id)
	if err != nil {
		return nil, false, err
	}
	defer raw.Close()

	reader := core.NewCSVReader(raw)
	header, err := reader.Read()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			slog.Warn("skipping unreadable dataset in search", "dataset_id", id, "error", err)
		}
		return nil, false, nil
	}
	header = core.NormalizeHeader(header)

	rf := newRowFilter(header, filter)

	var matches []map[string]any
	for {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}

		row, err := core.ReadRow(reader, len(header))
		if errors.Is(err, io.EOF) {
			return matches, false, nil
		}
		if err != nil {
			slog.Warn("stopping search of malformed dataset", "dataset_id", id, "error", err)
			return matches, false, nil
		}

		if !rf.match(row) {
			continue
		}

		m := core.RowMap(header, row)
		m[FileField] = id
		matches = append(matches, m)

		if len(matches) >= limit {
			return matches, true, nil
		}
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"02/01/2006 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses the timestamp formats commonly found in IPDR exports.
// Values without a zone are taken as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseDateBound parses a date_from/date_to query value. A bare date used as
// an upper bound covers the whole day.
func ParseDateBound(s string, upper bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, ok := ParseTimestamp(s)
	if !ok {
		return nil, fmt.Errorf("invalid date '%s'", s)
	}
	if upper && len(strings.TrimSpace(s)) == len("2006-01-02") {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
