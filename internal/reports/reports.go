package reports

import (
	"context"
	"fmt"
	"time"

	"ipdr-backend/internal/database"
	"ipdr-backend/internal/records"

	"gorm.io/gorm"
)

const (
	DefaultTopN   = 10
	HistogramBins = 20
	SampleSize    = 10
)

type RecordSource interface {
	IterRecords(ctx context.Context) records.RecordIterator
}

type Engine struct {
	db     *gorm.DB
	source RecordSource
	topN   int
	now    func() time.Time
}

type Option func(*Engine)

func WithTopN(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.topN = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(db *gorm.DB, source RecordSource, opts ...Option) *Engine {
	e := &Engine{db: db, source: source, topN: DefaultTopN, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type Summary struct {
	TotalPredictions int64
	ByLabel          map[string]int64
}

// Histogram counts confidence values in equal-width bins over [0, 1]. Bin i
// covers [i/len, (i+1)/len); the last bin also includes 1.
type Histogram struct {
	Counts [HistogramBins]int64
}

func (h *Histogram) Add(v float64) {
	bin := int(v * HistogramBins)
	bin = max(0, min(bin, HistogramBins-1))
	h.Counts[bin]++
}

func (h *Histogram) Total() int64 {
	var total int64
	for _, c := range h.Counts {
		total += c
	}
	return total
}

type Report struct {
	Summary

	GeneratedAt time.Time
	Labels      []database.LabelCount
	TopIps      []database.IpCount
	Confidence  Histogram
	Samples     []records.DatasetRecord
}

func (e *Engine) Summary(ctx context.Context) (Summary, error) {
	labels, err := database.LabelCounts(ctx, e.db)
	if err != nil {
		return Summary{}, err
	}
	return summarize(labels), nil
}

func summarize(labels []database.LabelCount) Summary {
	s := Summary{ByLabel: make(map[string]int64, len(labels))}
	for _, l := range labels {
		s.ByLabel[l.Label] = l.Count
		s.TotalPredictions += l.Count
	}
	return s
}

// Build aggregates every live prediction into a report.
func (e *Engine) Build(ctx context.Context) (Report, error) {
	labels, err := database.LabelCounts(ctx, e.db)
	if err != nil {
		return Report{}, err
	}

	topIps, err := database.TopIps(ctx, e.db, e.topN)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		Summary:     summarize(labels),
		GeneratedAt: e.now().UTC(),
		Labels:      labels,
		TopIps:      topIps,
	}

	if err := database.IterConfidence(ctx, e.db, report.Confidence.Add); err != nil {
		return Report{}, err
	}

	for rec, err := range e.source.IterRecords(ctx) {
		if err != nil {
			return Report{}, fmt.Errorf("error loading sample records: %w", err)
		}
		report.Samples = append(report.Samples, rec)
		if len(report.Samples) >= SampleSize {
			break
		}
	}

	return report, nil
}
