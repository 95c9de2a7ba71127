package core

import (
	"fmt"
	"log/slog"
)

// ModelType represents the serialization format of the trained classifier
type ModelType string

// Available model types
const (
	LinearModel ModelType = "linear"
	OnnxModel   ModelType = "onnx"
)

type ModelLoader func(manifest ModelManifest) (Classifier, error)

func NewModelLoaders() map[ModelType]ModelLoader {
	return map[ModelType]ModelLoader{
		LinearModel: func(m ModelManifest) (Classifier, error) {
			return LoadLinearModel(m.Model)
		},
		OnnxModel: func(m ModelManifest) (Classifier, error) {
			return LoadOnnxModel(m.Model, m.Onnx, m.NumClasses)
		},
	}
}

// Release frees native resources held by a classifier, if any.
func Release(c Classifier) {
	if r, ok := c.(interface{ Release() }); ok {
		r.Release()
	}
}

// LoadInferenceAdapter loads the classifier described by the manifest along
// with its optional scaler, feature list and label encoder. Missing optional
// artifacts are skipped; unreadable ones are errors.
func LoadInferenceAdapter(manifest ModelManifest, loaders map[ModelType]ModelLoader) (*InferenceAdapter, Classifier, error) {
	var opts []AdapterOption

	var features []string
	if ok, err := loadOptionalJSON(manifest.Features, &features); err != nil {
		return nil, nil, fmt.Errorf("error loading feature columns: %w", err)
	} else if ok {
		opts = append(opts, WithFeatureColumns(features))
	}

	var scaler StandardScaler
	if ok, err := loadOptionalJSON(manifest.Scaler, &scaler); err != nil {
		return nil, nil, fmt.Errorf("error loading scaler: %w", err)
	} else if ok {
		opts = append(opts, WithScaler(&scaler))
	}

	var encoder LabelEncoder
	if ok, err := loadOptionalJSON(manifest.LabelEncoder, &encoder); err != nil {
		// an unreadable label encoder only costs readable labels
		slog.Warn("could not load label encoder, predictions will be raw model outputs", "error", err)
	} else if ok {
		opts = append(opts, WithLabelDecoder(&encoder))
		if manifest.NumClasses == 0 {
			manifest.NumClasses = len(encoder.Classes)
		}
	}

	loader, ok := loaders[manifest.Type]
	if !ok {
		return nil, nil, fmt.Errorf("unsupported model type '%s'", manifest.Type)
	}

	classifier, err := loader(manifest)
	if err != nil {
		return nil, nil, fmt.Errorf("error loading %s model from %s: %w", manifest.Type, manifest.Model, err)
	}

	_, probabilistic := classifier.(ProbabilisticClassifier)
	slog.Info("loaded model", "type", manifest.Type, "path", manifest.Model, "features", len(features), "probabilities", probabilistic)

	return NewInferenceAdapter(classifier, opts...), classifier, nil
}
