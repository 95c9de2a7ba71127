package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ipdr-backend/cmd"
	"ipdr-backend/internal/api"
	"ipdr-backend/internal/auth"
	"ipdr-backend/internal/config"
	"ipdr-backend/internal/core"
	"ipdr-backend/internal/events"
	"ipdr-backend/internal/messaging"
	"ipdr-backend/internal/records"
	"ipdr-backend/internal/reports"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	ort "github.com/yalue/onnxruntime_go"
)

const inMemoryQueueSize = 1024

func loadModel(cfg config.Config) (*core.InferenceAdapter, core.Classifier) {
	manifest := core.DefaultManifest(cfg.OutputPath, core.ModelType(cfg.ModelType))
	if cfg.ModelManifest != "" {
		var err error
		manifest, err = core.LoadManifest(cfg.ModelManifest)
		if err != nil {
			log.Fatalf("Failed to load model manifest: %v", err)
		}
	}

	adapter, classifier, err := core.LoadInferenceAdapter(manifest, core.NewModelLoaders())
	if err != nil {
		log.Fatalf("Failed to load model: %v", err)
	}
	return adapter, classifier
}

// createQueue returns the event publisher. Without RabbitMQ, events go to an
// in-process queue that is drained by a local event processor.
func createQueue(cfg config.Config, auditor events.Auditor) (messaging.Publisher, func()) {
	if cfg.RabbitMQURL != "" {
		publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		return publisher, publisher.Close
	}

	slog.Info("RABBITMQ_URL not set, using in-memory event queue")
	queue := messaging.NewInMemoryQueue(inMemoryQueueSize)
	processor := events.NewEventProcessor(auditor, queue)
	go processor.Start()
	return queue, processor.Stop
}

func createServer(cfg config.Config, service *api.BackendService) *http.Server {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	service.AddRoutes(r)

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}
}

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}

	if cfg.ModelType == string(core.OnnxModel) {
		ort.SetSharedLibraryPath(cfg.OnnxRuntimeDylib)
		if err := ort.InitializeEnvironment(); err != nil {
			log.Fatalf("could not init ONNX Runtime: %v", err)
		}
		defer func() {
			if err := ort.DestroyEnvironment(); err != nil {
				log.Fatalf("error destroying onnx env: %v", err)
			}
		}()
	}

	slog.Info("starting backend", "root", cfg.Root, "port", cfg.Port, "model_type", cfg.ModelType, "output_path", cfg.OutputPath)

	ctx := context.Background()

	db := cmd.CreateDatabase(cfg)
	provider := cmd.CreateStorage(ctx, cfg)

	adapter, classifier := loadModel(cfg)
	defer core.Release(classifier)

	publisher, closeQueue := createQueue(cfg, records.NewStore(db, provider, cfg.UploadBucket))
	store := records.NewStore(db, provider, cfg.UploadBucket, records.WithPublisher(publisher))

	service := api.NewBackendService(
		db,
		adapter,
		store,
		reports.NewEngine(db, store, reports.WithTopN(cfg.ReportTopN)),
		auth.NewService(db),
	)

	server := createServer(cfg, service)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	slog.Info("server started", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
	}

	closeQueue()
	slog.Info("server stopped")
}
