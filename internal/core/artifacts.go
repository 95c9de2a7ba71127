package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v2"
)

// StandardScaler standardizes features as (x - mean) / scale, matching the
// parameters exported from a fitted scikit-learn StandardScaler.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

var _ Scaler = (*StandardScaler)(nil)

func (s *StandardScaler) Transform(features [][]float64) ([][]float64, error) {
	if len(s.Mean) != len(s.Scale) {
		return nil, fmt.Errorf("scaler has %d means but %d scales", len(s.Mean), len(s.Scale))
	}

	out := make([][]float64, len(features))
	for i, row := range features {
		if len(row) != len(s.Mean) {
			return nil, fmt.Errorf("scaler expects %d features, row %d has %d", len(s.Mean), i, len(row))
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			scale := s.Scale[j]
			if scale == 0 {
				scale = 1
			}
			scaled[j] = (v - s.Mean[j]) / scale
		}
		out[i] = scaled
	}
	return out, nil
}

// LabelEncoder maps integer class indices produced by a model back to the
// class names it was trained with.
type LabelEncoder struct {
	Classes []string `json:"classes"`
}

var _ LabelDecoder = (*LabelEncoder)(nil)

func (e *LabelEncoder) Decode(raw []string) ([]string, error) {
	out := make([]string, len(raw))
	for i, r := range raw {
		idx, err := strconv.Atoi(r)
		if err != nil {
			f, ferr := strconv.ParseFloat(r, 64)
			if ferr != nil || f != float64(int(f)) {
				return nil, fmt.Errorf("label %q is not a class index", r)
			}
			idx = int(f)
		}
		if idx < 0 || idx >= len(e.Classes) {
			return nil, fmt.Errorf("class index %d out of range [0, %d)", idx, len(e.Classes))
		}
		out[i] = e.Classes[idx]
	}
	return out, nil
}

func (e *LabelEncoder) UnmarshalJSON(data []byte) error {
	var classes []string
	if err := json.Unmarshal(data, &classes); err == nil {
		e.Classes = classes
		return nil
	}

	type plain LabelEncoder
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = LabelEncoder(p)
	return nil
}

// ModelManifest describes the artifacts of a trained model. Paths are
// relative to the directory holding the manifest.
type ModelManifest struct {
	Type         ModelType `yaml:"type"`
	Model        string    `yaml:"model"`
	Scaler       string    `yaml:"scaler"`
	Features     string    `yaml:"features"`
	LabelEncoder string    `yaml:"label_encoder"`
	NumClasses   int       `yaml:"num_classes"`

	Onnx OnnxOptions `yaml:"onnx"`
}

type OnnxOptions struct {
	Input             string `yaml:"input"`
	LabelOutput       string `yaml:"label_output"`
	ProbabilityOutput string `yaml:"probability_output"`
}

func LoadManifest(path string) (ModelManifest, error) {
	var m ModelManifest

	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("error reading model manifest %s: %w", path, err)
	}
	if err := yaml.UnmarshalStrict(data, &m); err != nil {
		return m, fmt.Errorf("error parsing model manifest %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	m.Model = resolveArtifactPath(dir, m.Model)
	m.Scaler = resolveArtifactPath(dir, m.Scaler)
	m.Features = resolveArtifactPath(dir, m.Features)
	m.LabelEncoder = resolveArtifactPath(dir, m.LabelEncoder)

	return m, nil
}

// DefaultManifest lays out the conventional artifact names inside dir.
func DefaultManifest(dir string, modelType ModelType) ModelManifest {
	modelFile := "ipdr_model.json"
	if modelType == OnnxModel {
		modelFile = "ipdr_model.onnx"
	}
	return ModelManifest{
		Type:         modelType,
		Model:        filepath.Join(dir, modelFile),
		Scaler:       filepath.Join(dir, "ipdr_scaler.json"),
		Features:     filepath.Join(dir, "ipdr_features.json"),
		LabelEncoder: filepath.Join(dir, "ipdr_label_encoder.json"),
	}
}

func resolveArtifactPath(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// loadOptionalJSON decodes path into dest. It returns false without error
// when the path is empty or the file does not exist.
func loadOptionalJSON(path string, dest any) (bool, error) {
	if path == "" {
		return false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Info("optional model artifact not found, skipping", "path", path)
			return false, nil
		}
		return false, fmt.Errorf("error reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("error parsing %s: %w", path, err)
	}
	return true, nil
}
