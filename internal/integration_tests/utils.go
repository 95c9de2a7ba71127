package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	backend "ipdr-backend/internal/api"
	"ipdr-backend/internal/auth"
	"ipdr-backend/internal/core"
	"ipdr-backend/internal/database"
	"ipdr-backend/internal/messaging"
	"ipdr-backend/internal/records"
	"ipdr-backend/internal/reports"
	"ipdr-backend/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/minio"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const uploadBucket = "test-uploads"

// volumeClassifier labels a row suspicious when any feature exceeds 1000.
// It is served with data_volume as its only feature column.
type volumeClassifier struct{}

func (volumeClassifier) Predict(features [][]float64) ([]string, error) {
	labels := make([]string, len(features))
	for i, row := range features {
		labels[i] = "normal"
		for _, v := range row {
			if v > 1000 {
				labels[i] = "suspicious"
			}
		}
	}
	return labels, nil
}

func (volumeClassifier) PredictProba(features [][]float64) ([][]float64, error) {
	proba := make([][]float64, len(features))
	for i := range features {
		proba[i] = []float64{0.2, 0.8}
	}
	return proba, nil
}

func createDB(t *testing.T) *gorm.DB {
	uri := setupPostgresContainer(t, context.Background())
	db, err := database.OpenPostgres(uri)
	require.NoError(t, err)

	return db
}

func createS3Provider(t *testing.T, ctx context.Context) *storage.S3Provider {
	t.Helper()

	endpoint := setupMinioContainer(t, ctx)

	provider, err := storage.NewS3Provider(storage.S3ClientConfig{
		Endpoint:        endpoint,
		AccessKeyID:     minioUsername,
		SecretAccessKey: minioPassword,
	})
	require.NoError(t, err)
	require.NoError(t, provider.CreateBucket(ctx, uploadBucket))

	return provider
}

func createRouter(db *gorm.DB, store *records.Store) http.Handler {
	service := backend.NewBackendService(
		db,
		core.NewInferenceAdapter(volumeClassifier{}, core.WithFeatureColumns([]string{"data_volume"})),
		store,
		reports.NewEngine(db, store),
		auth.NewService(db, auth.WithCost(bcrypt.MinCost)),
	)

	router := chi.NewRouter()
	service.AddRoutes(router)
	return router
}

func setupRabbitMQContainer(t *testing.T, ctx context.Context) (*messaging.RabbitMQPublisher, *messaging.RabbitMQReceiver) {
	rabbitmqContainer, err := rabbitmq.Run(ctx, "rabbitmq:3.12.11-management-alpine")
	require.NoError(t, err, "Failed to start RabbitMQ container")

	t.Cleanup(func() {
		err := rabbitmqContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate RabbitMQ container")
	})

	connStr, err := rabbitmqContainer.AmqpURL(ctx)
	require.NoError(t, err, "Failed to get RabbitMQ AMQP URL")

	publisher, err := messaging.NewRabbitMQPublisher(connStr)
	require.NoError(t, err)
	t.Cleanup(publisher.Close)

	receiver, err := messaging.NewRabbitMQReceiver(connStr)
	require.NoError(t, err)

	return publisher, receiver
}

const (
	minioUsername = "admin"
	minioPassword = "password"
)

func setupMinioContainer(t *testing.T, ctx context.Context) string {
	minioContainer, err := minio.Run(
		ctx,
		"minio/minio:RELEASE.2024-01-16T16-07-38Z",
		minio.WithUsername(minioUsername),
		minio.WithPassword(minioPassword),
	)
	require.NoError(t, err, "Failed to start MinIO container")

	t.Cleanup(func() {
		err := minioContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate MinIO container")
	})

	connStr, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err, "Failed to get MinIO connection string")

	return "http://" + connStr
}

func setupPostgresContainer(t *testing.T, ctx context.Context) string {
	dbName, dbUser, dbPassword := "test_db", "test_user", "test_password"

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	t.Cleanup(func() {
		err := postgresContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate PostgreSQL container")
	})

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get PostgreSQL connection string")

	return connStr
}

func uploadFile(api http.Handler, name, content string, dest any) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := part.Write([]byte(content)); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req := httptest.NewRequest(http.MethodPost, "/predict-file", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return serve(api, req, dest)
}

func httpRequest(api http.Handler, method, endpoint string, payload any, dest any) error {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return err
		}
	}

	req := httptest.NewRequest(method, endpoint, &body)
	req.Header.Set("Content-Type", "application/json")

	return serve(api, req, dest)
}

func serve(api http.Handler, req *http.Request, dest any) error {
	rr := httptest.NewRecorder()
	api.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		return fmt.Errorf("expected status code 200, got %d: %v", rr.Code, rr.Body.String())
	}

	if dest != nil {
		if b, ok := dest.(*[]byte); ok {
			*b = rr.Body.Bytes()
			return nil
		}
		if err := json.Unmarshal(rr.Body.Bytes(), dest); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}
