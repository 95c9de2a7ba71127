package cmd

import (
	"context"
	"flag"
	"log"
	"log/slog"

	"ipdr-backend/internal/config"
	"ipdr-backend/internal/database"
	"ipdr-backend/internal/storage"

	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

func CreateDatabase(cfg config.Config) *gorm.DB {
	if cfg.DatabaseURL == "" {
		slog.Info("DATABASE_URL not set, using sqlite", "path", cfg.SqlitePath())
	}

	db, err := database.NewDatabase(cfg.DatabaseURL, cfg.SqlitePath())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	return db
}

func CreateStorage(ctx context.Context, cfg config.Config) storage.Provider {
	var provider storage.Provider
	if cfg.S3EndpointURL != "" {
		s3p, err := storage.NewS3Provider(storage.S3ClientConfig{
			Endpoint:        cfg.S3EndpointURL,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			log.Fatalf("Failed to create S3 storage client: %v", err)
		}
		provider = s3p
	} else {
		slog.Info("S3_ENDPOINT_URL not set, using local storage", "dir", cfg.StorageDir())
		local, err := storage.NewLocalProvider(cfg.StorageDir())
		if err != nil {
			log.Fatalf("Failed to create local storage: %v", err)
		}
		provider = local
	}

	if err := provider.CreateBucket(ctx, cfg.UploadBucket); err != nil {
		log.Fatalf("Failed to create upload bucket '%s': %v", cfg.UploadBucket, err)
	}

	return provider
}
