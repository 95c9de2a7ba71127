package core

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
)

// LinearClassifier is a multinomial logistic regression exported as plain
// coefficients. Labels are class indices unless Classes is set.
type LinearClassifier struct {
	Coef      [][]float64 `json:"coef"`
	Intercept []float64   `json:"intercept"`
	Classes   []string    `json:"classes,omitempty"`
}

var _ ProbabilisticClassifier = (*LinearClassifier)(nil)

func LoadLinearModel(path string) (*LinearClassifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading linear model: %w", err)
	}

	var model LinearClassifier
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("error parsing linear model: %w", err)
	}

	if err := model.validate(); err != nil {
		return nil, err
	}

	return &model, nil
}

func (m *LinearClassifier) validate() error {
	if len(m.Coef) == 0 {
		return fmt.Errorf("linear model has no classes")
	}
	if len(m.Intercept) != len(m.Coef) {
		return fmt.Errorf("linear model has %d coefficient rows but %d intercepts", len(m.Coef), len(m.Intercept))
	}
	if len(m.Classes) > 0 && len(m.Classes) != m.numClasses() {
		return fmt.Errorf("linear model predicts %d classes but names %d", m.numClasses(), len(m.Classes))
	}
	for i, row := range m.Coef {
		if len(row) != len(m.Coef[0]) {
			return fmt.Errorf("coefficient row %d has %d weights, expected %d", i, len(row), len(m.Coef[0]))
		}
	}
	return nil
}

func (m *LinearClassifier) numClasses() int {
	if len(m.Coef) == 1 {
		return 2
	}
	return len(m.Coef)
}

func (m *LinearClassifier) Predict(features [][]float64) ([]string, error) {
	probs, err := m.PredictProba(features)
	if err != nil {
		return nil, err
	}

	labels := make([]string, len(probs))
	for i, p := range probs {
		best := 0
		for k := range p {
			if p[k] > p[best] {
				best = k
			}
		}
		if len(m.Classes) > 0 {
			labels[i] = m.Classes[best]
		} else {
			labels[i] = strconv.Itoa(best)
		}
	}
	return labels, nil
}

func (m *LinearClassifier) PredictProba(features [][]float64) ([][]float64, error) {
	nFeatures := len(m.Coef[0])

	out := make([][]float64, len(features))
	for i, row := range features {
		if len(row) != nFeatures {
			return nil, fmt.Errorf("model expects %d features, row %d has %d", nFeatures, i, len(row))
		}
		out[i] = softmax(m.decision(row))
	}
	return out, nil
}

func (m *LinearClassifier) decision(row []float64) []float64 {
	scores := make([]float64, len(m.Coef))
	for k, w := range m.Coef {
		s := m.Intercept[k]
		for j, x := range row {
			s += w[j] * x
		}
		scores[k] = s
	}
	return scores
}

func softmax(scores []float64) []float64 {
	if len(scores) == 1 {
		// binary models export a single decision function
		p := 1 / (1 + math.Exp(-scores[0]))
		return []float64{1 - p, p}
	}

	maxScore := scores[0]
	for _, s := range scores[1:] {
		maxScore = math.Max(maxScore, s)
	}

	out := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		out[i] = math.Exp(s - maxScore)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
