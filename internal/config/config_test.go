package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ROOT", "/data")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "linear", cfg.ModelType)
	assert.Equal(t, "uploads", cfg.UploadBucket)
	assert.Equal(t, 10, cfg.ReportTopN)
	assert.Equal(t, []string{"*"}, cfg.CorsOrigins)
	assert.Equal(t, filepath.Join("/data", "db", "ipdr.db"), cfg.SqlitePath())
	assert.Equal(t, filepath.Join("/data", "storage"), cfg.StorageDir())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9001")
	t.Setenv("MODEL_TYPE", "ONNX")
	t.Setenv("ONNX_RUNTIME_DYLIB", "/usr/lib/libonnxruntime.so")
	t.Setenv("CORS_ORIGINS", "http://a.example,http://b.example")
	t.Setenv("REPORT_TOP_N", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Port)
	assert.Equal(t, "onnx", cfg.ModelType)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.CorsOrigins)
	assert.Equal(t, 3, cfg.ReportTopN)
}

func TestLoadInvalid(t *testing.T) {
	for name, env := range map[string]map[string]string{
		"model type":        {"MODEL_TYPE": "sklearn"},
		"onnx without lib":  {"MODEL_TYPE": "onnx", "ONNX_RUNTIME_DYLIB": ""},
		"top n":             {"REPORT_TOP_N": "0"},
		"port not a number": {"PORT": "http"},
	} {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
