package core

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// Classifier is a pre-trained model producing one raw label per feature row.
type Classifier interface {
	Predict(features [][]float64) ([]string, error)
}

// ProbabilisticClassifier is implemented by classifiers that can also report
// per-class probabilities.
type ProbabilisticClassifier interface {
	Classifier

	PredictProba(features [][]float64) ([][]float64, error)
}

type Scaler interface {
	Transform(features [][]float64) ([][]float64, error)
}

type LabelDecoder interface {
	Decode(raw []string) ([]string, error)
}

var ErrNoProbabilityOutput = errors.New("classifier does not expose probabilities")

// ConfidenceResult is the outcome of the best-effort confidence extraction.
// Values has one entry per row when Err is nil.
type ConfidenceResult struct {
	Values []float64
	Err    error
}

func (c ConfidenceResult) Available() bool {
	return c.Err == nil && c.Values != nil
}

// At returns the confidence of row i, or nil when confidence is unavailable.
func (c ConfidenceResult) At(i int) *float64 {
	if !c.Available() || i >= len(c.Values) {
		return nil
	}
	v := c.Values[i]
	return &v
}

type Prediction struct {
	Labels     []string
	Confidence ConfidenceResult
}

type InferenceAdapter struct {
	classifier     Classifier
	scaler         Scaler
	decoder        LabelDecoder
	featureColumns []string
}

type AdapterOption func(*InferenceAdapter)

func WithScaler(s Scaler) AdapterOption {
	return func(a *InferenceAdapter) { a.scaler = s }
}

func WithLabelDecoder(d LabelDecoder) AdapterOption {
	return func(a *InferenceAdapter) { a.decoder = d }
}

// WithFeatureColumns fixes the ordered list of columns the classifier was
// trained on.
func WithFeatureColumns(cols []string) AdapterOption {
	return func(a *InferenceAdapter) { a.featureColumns = slices.Clone(cols) }
}

func NewInferenceAdapter(classifier Classifier, opts ...AdapterOption) *InferenceAdapter {
	a := &InferenceAdapter{classifier: classifier}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *InferenceAdapter) FeatureColumns() []string {
	return a.featureColumns
}

// Predict runs the classifier over every row of the table. The returned
// labels are in row order. Confidence is computed on a separate best-effort
// path and never causes Predict to fail.
func (a *InferenceAdapter) Predict(table *Table) (Prediction, error) {
	features, err := a.selectFeatures(table)
	if err != nil {
		return Prediction{}, err
	}

	scaled := a.scale(features)

	raw, err := a.classifier.Predict(scaled)
	if err != nil {
		return Prediction{}, fmt.Errorf("model prediction failed: %w", err)
	}
	if len(raw) != table.Len() {
		return Prediction{}, fmt.Errorf("model returned %d labels for %d rows", len(raw), table.Len())
	}

	return Prediction{
		Labels:     a.decode(raw),
		Confidence: a.confidence(table, scaled),
	}, nil
}

func (a *InferenceAdapter) selectFeatures(table *Table) ([][]float64, error) {
	if table.Len() == 0 {
		return nil, fmt.Errorf("%w: uploaded file has no rows", ErrNoNumericFeatures)
	}

	if len(a.featureColumns) == 0 {
		cols := table.NumericColumns()
		if len(cols) == 0 {
			return nil, fmt.Errorf("%w: no numeric columns found in the uploaded CSV", ErrNoNumericFeatures)
		}
		return featureMatrix(table, cols), nil
	}

	var missing []string
	for _, c := range a.featureColumns {
		if table.ColumnIndex(c) < 0 {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		slog.Warn("expected feature columns missing from upload, filling with 0.0", "missing", missing, "expected", len(a.featureColumns))
	}

	return featureMatrix(table, a.featureColumns), nil
}

// featureMatrix selects cols from the table in order. Absent columns and
// non-numeric cells become 0.0.
func featureMatrix(table *Table, cols []string) [][]float64 {
	indices := make([]int, len(cols))
	for i, c := range cols {
		indices[i] = table.ColumnIndex(c)
	}

	imputed := 0
	out := make([][]float64, table.Len())
	for r := range table.Rows {
		row := make([]float64, len(cols))
		for j, idx := range indices {
			if idx < 0 {
				continue
			}
			v, ok := ParseNumber(table.Cell(r, idx))
			if !ok {
				imputed++
				continue
			}
			row[j] = v
		}
		out[r] = row
	}

	if imputed > 0 {
		slog.Warn("non-numeric feature cells imputed with 0.0", "cells", imputed)
	}

	return out
}

func (a *InferenceAdapter) scale(features [][]float64) [][]float64 {
	if a.scaler == nil {
		return features
	}
	scaled, err := a.scaler.Transform(features)
	if err != nil {
		slog.Warn("feature scaling failed, using unscaled features", "error", err)
		return features
	}
	return scaled
}

func (a *InferenceAdapter) decode(raw []string) []string {
	if a.decoder == nil {
		return raw
	}
	labels, err := a.decoder.Decode(raw)
	if err != nil || len(labels) != len(raw) {
		slog.Warn("label decoding failed, returning raw model outputs", "error", err)
		return raw
	}
	return labels
}

func (a *InferenceAdapter) confidence(table *Table, scaled [][]float64) ConfidenceResult {
	pc, ok := a.classifier.(ProbabilisticClassifier)
	if !ok {
		slog.Debug("confidence unavailable", "reason", ErrNoProbabilityOutput)
		return ConfidenceResult{Err: ErrNoProbabilityOutput}
	}

	probs, err := pc.PredictProba(scaled)
	if err != nil {
		slog.Warn("probability prediction on model features failed, retrying on numeric columns", "error", err)

		cols := table.NumericColumns()
		if len(cols) == 0 {
			return a.confidenceFailed(fmt.Errorf("%w: %w", ErrNoNumericFeatures, err))
		}
		probs, err = pc.PredictProba(featureMatrix(table, cols))
		if err != nil {
			return a.confidenceFailed(err)
		}
	}

	if len(probs) != table.Len() {
		return a.confidenceFailed(fmt.Errorf("model returned %d probability rows for %d rows", len(probs), table.Len()))
	}

	values := make([]float64, len(probs))
	for i, p := range probs {
		if len(p) == 0 {
			return a.confidenceFailed(fmt.Errorf("empty probability vector for row %d", i))
		}
		values[i] = slices.Max(p)
	}

	return ConfidenceResult{Values: values}
}

func (a *InferenceAdapter) confidenceFailed(err error) ConfidenceResult {
	slog.Warn("confidence extraction failed", "error", err)
	return ConfidenceResult{Err: err}
}
