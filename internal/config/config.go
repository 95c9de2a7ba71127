package config

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Root string `env:"ROOT" envDefault:"./ipdr-data"`
	Port int    `env:"PORT" envDefault:"8000"`

	// Empty means sqlite under Root/db.
	DatabaseURL string `env:"DATABASE_URL"`

	// Empty means a local object store under Root/storage.
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
	UploadBucket      string `env:"UPLOAD_BUCKET" envDefault:"uploads"`

	OutputPath       string `env:"OUTPUT_PATH" envDefault:"./outputs"`
	ModelType        string `env:"MODEL_TYPE" envDefault:"linear"`
	ModelManifest    string `env:"MODEL_MANIFEST"`
	OnnxRuntimeDylib string `env:"ONNX_RUNTIME_DYLIB"`

	RabbitMQURL string `env:"RABBITMQ_URL"`

	ReportTopN  int      `env:"REPORT_TOP_N" envDefault:"10"`
	CorsOrigins []string `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("error parsing config: %w", err)
	}

	cfg.ModelType = strings.ToLower(strings.TrimSpace(cfg.ModelType))
	if cfg.ModelType != "linear" && cfg.ModelType != "onnx" {
		return cfg, fmt.Errorf("invalid MODEL_TYPE '%s': must be 'linear' or 'onnx'", cfg.ModelType)
	}

	if cfg.ModelType == "onnx" && cfg.OnnxRuntimeDylib == "" {
		return cfg, fmt.Errorf("ONNX_RUNTIME_DYLIB must be set when MODEL_TYPE is 'onnx'")
	}

	if cfg.ReportTopN <= 0 {
		return cfg, fmt.Errorf("REPORT_TOP_N must be positive, got %d", cfg.ReportTopN)
	}

	if cfg.S3EndpointURL != "" && (cfg.S3AccessKeyID == "" || cfg.S3SecretAccessKey == "") {
		log.Println("Warning: S3_ENDPOINT_URL is set, but AWS_ACCESS_KEY_ID or AWS_SECRET_ACCESS_KEY are missing.")
	}

	return cfg, nil
}

func (c Config) SqlitePath() string {
	return filepath.Join(c.Root, "db", "ipdr.db")
}

func (c Config) StorageDir() string {
	return filepath.Join(c.Root, "storage")
}
