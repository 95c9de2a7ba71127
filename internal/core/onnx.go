package core

import (
	"fmt"
	"strconv"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	defaultOnnxInput             = "float_input"
	defaultOnnxLabelOutput       = "label"
	defaultOnnxProbabilityOutput = "probabilities"
)

// OnnxClassifier runs a classifier exported to ONNX (for example with
// skl2onnx). The graph takes a float32 [N, F] input and produces an int64
// [N] label tensor.
type OnnxClassifier struct {
	session *ort.DynamicAdvancedSession
}

// OnnxProbabilisticClassifier additionally reads a float32 [N, K]
// probability tensor. It requires the export to disable zipmap.
type OnnxProbabilisticClassifier struct {
	OnnxClassifier
	numClasses int
}

var (
	_ Classifier              = (*OnnxClassifier)(nil)
	_ ProbabilisticClassifier = (*OnnxProbabilisticClassifier)(nil)
)

// LoadOnnxModel opens an ONNX session for the model at path. The ONNX runtime
// environment must already be initialized. When numClasses is zero the
// probability output is not bound and confidence is unavailable.
func LoadOnnxModel(path string, opts OnnxOptions, numClasses int) (Classifier, error) {
	input := valueOr(opts.Input, defaultOnnxInput)
	labelOutput := valueOr(opts.LabelOutput, defaultOnnxLabelOutput)
	probOutput := valueOr(opts.ProbabilityOutput, defaultOnnxProbabilityOutput)

	outputs := []string{labelOutput}
	if numClasses > 0 {
		outputs = append(outputs, probOutput)
	}

	session, err := ort.NewDynamicAdvancedSession(path, []string{input}, outputs, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create onnx session: %w", err)
	}

	base := OnnxClassifier{session: session}
	if numClasses == 0 {
		return &base, nil
	}
	return &OnnxProbabilisticClassifier{OnnxClassifier: base, numClasses: numClasses}, nil
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func inputTensor(features [][]float64) (*ort.Tensor[float32], error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("no rows to run inference on")
	}
	width := len(features[0])
	flat := make([]float32, 0, len(features)*width)
	for i, row := range features {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has %d features, expected %d", i, len(row), width)
		}
		for _, v := range row {
			flat = append(flat, float32(v))
		}
	}
	return ort.NewTensor(ort.NewShape(int64(len(features)), int64(width)), flat)
}

func formatLabels(raw []int64) []string {
	labels := make([]string, len(raw))
	for i, l := range raw {
		labels[i] = strconv.FormatInt(l, 10)
	}
	return labels
}

func (m *OnnxClassifier) Predict(features [][]float64) ([]string, error) {
	in, err := inputTensor(features)
	if err != nil {
		return nil, err
	}
	defer in.Destroy()

	labels, err := ort.NewEmptyTensor[int64](ort.NewShape(int64(len(features))))
	if err != nil {
		return nil, err
	}
	defer labels.Destroy()

	if err := m.session.Run([]ort.Value{in}, []ort.Value{labels}); err != nil {
		return nil, fmt.Errorf("session run error: %w", err)
	}

	return formatLabels(labels.GetData()), nil
}

func (m *OnnxProbabilisticClassifier) Predict(features [][]float64) ([]string, error) {
	labels, _, err := m.run(features)
	if err != nil {
		return nil, err
	}
	return formatLabels(labels), nil
}

func (m *OnnxProbabilisticClassifier) PredictProba(features [][]float64) ([][]float64, error) {
	_, probs, err := m.run(features)
	return probs, err
}

func (m *OnnxProbabilisticClassifier) run(features [][]float64) ([]int64, [][]float64, error) {
	in, err := inputTensor(features)
	if err != nil {
		return nil, nil, err
	}
	defer in.Destroy()

	n := int64(len(features))
	labels, err := ort.NewEmptyTensor[int64](ort.NewShape(n))
	if err != nil {
		return nil, nil, err
	}
	defer labels.Destroy()

	probs, err := ort.NewEmptyTensor[float32](ort.NewShape(n, int64(m.numClasses)))
	if err != nil {
		return nil, nil, err
	}
	defer probs.Destroy()

	if err := m.session.Run([]ort.Value{in}, []ort.Value{labels, probs}); err != nil {
		return nil, nil, fmt.Errorf("session run error: %w", err)
	}

	flat := probs.GetData()
	out := make([][]float64, n)
	for i := range out {
		row := make([]float64, m.numClasses)
		for k := range row {
			row[k] = float64(flat[i*m.numClasses+k])
		}
		out[i] = row
	}

	return append([]int64(nil), labels.GetData()...), out, nil
}

func (m *OnnxClassifier) Release() {
	m.session.Destroy()
}
