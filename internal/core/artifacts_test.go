package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardScaler(t *testing.T) {
	s := &StandardScaler{Mean: []float64{1, 2}, Scale: []float64{2, 0}}

	out, err := s.Transform([][]float64{{3, 5}})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 3}}, out)

	_, err = s.Transform([][]float64{{1}})
	assert.Error(t, err)
}

func TestLabelEncoder(t *testing.T) {
	var e LabelEncoder
	require.NoError(t, e.UnmarshalJSON([]byte(`["normal","suspicious"]`)))
	assert.Equal(t, []string{"normal", "suspicious"}, e.Classes)

	var wrapped LabelEncoder
	require.NoError(t, wrapped.UnmarshalJSON([]byte(`{"classes":["x","y"]}`)))
	assert.Equal(t, []string{"x", "y"}, wrapped.Classes)

	labels, err := e.Decode([]string{"1", "0.0"})
	require.NoError(t, err)
	assert.Equal(t, []string{"suspicious", "normal"}, labels)

	_, err = e.Decode([]string{"2"})
	assert.Error(t, err)
	_, err = e.Decode([]string{"abc"})
	assert.Error(t, err)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.yaml")
	writeFile(t, path, "type: onnx\nmodel: model.onnx\nfeatures: /abs/features.json\nnum_classes: 3\nonnx:\n  input: X\n")

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, OnnxModel, m.Type)
	assert.Equal(t, filepath.Join(dir, "model.onnx"), m.Model)
	assert.Equal(t, "/abs/features.json", m.Features)
	assert.Equal(t, "", m.Scaler)
	assert.Equal(t, 3, m.NumClasses)
	assert.Equal(t, "X", m.Onnx.Input)

	writeFile(t, path, "type: linear\nunknown_key: 1\n")
	_, err = LoadManifest(path)
	assert.Error(t, err)
}

func TestLoadInferenceAdapter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "ipdr_model.json"), `{"coef":[[1,0],[0,1]],"intercept":[0,0]}`)
	writeFile(t, filepath.Join(dir, "ipdr_features.json"), `["bytes","duration"]`)
	writeFile(t, filepath.Join(dir, "ipdr_label_encoder.json"), `["normal","suspicious"]`)

	adapter, classifier, err := LoadInferenceAdapter(DefaultManifest(dir, LinearModel), NewModelLoaders())
	require.NoError(t, err)
	defer Release(classifier)

	assert.Equal(t, []string{"bytes", "duration"}, adapter.FeatureColumns())

	table := mustTable(t, "duration,bytes,ip\n9,1,10.0.0.1\n0,7,10.0.0.2\n")
	pred, err := adapter.Predict(table)
	require.NoError(t, err)
	assert.Equal(t, []string{"suspicious", "normal"}, pred.Labels)
	assert.True(t, pred.Confidence.Available())
}

func TestLoadInferenceAdapterErrors(t *testing.T) {
	dir := t.TempDir()

	_, _, err := LoadInferenceAdapter(DefaultManifest(dir, LinearModel), NewModelLoaders())
	assert.Error(t, err, "model file is missing")

	writeFile(t, filepath.Join(dir, "ipdr_model.json"), `{"coef":[[1]],"intercept":[0]}`)
	writeFile(t, filepath.Join(dir, "ipdr_scaler.json"), `not json`)
	_, _, err = LoadInferenceAdapter(DefaultManifest(dir, LinearModel), NewModelLoaders())
	assert.Error(t, err, "scaler is unreadable")

	_, _, err = LoadInferenceAdapter(ModelManifest{Type: "xgboost"}, NewModelLoaders())
	assert.Error(t, err)
}
