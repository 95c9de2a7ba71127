package records

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"ipdr-backend/internal/core"
	"ipdr-backend/internal/database"
	"ipdr-backend/internal/messaging"
	"ipdr-backend/internal/storage"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("dataset not found")

const (
	datasetPrefix = "upload_"
	datasetSuffix = ".csv"

	iterPageSize = 1000
)

// Store persists uploaded datasets and their predictions. The raw CSV lives
// in the object store; the dataset row and its records live in the database.
// The database transaction is the commit marker: a dataset is visible to
// readers only once its row is committed.
type Store struct {
	db        *gorm.DB
	storage   storage.Provider
	bucket    string
	publisher messaging.Publisher
	now       func() time.Time
}

type StoreOption func(*Store)

// WithPublisher publishes a DatasetEvent after every committed ingestion and
// deletion. Publish failures are logged and otherwise ignored.
func WithPublisher(p messaging.Publisher) StoreOption {
	return func(s *Store) { s.publisher = p }
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func NewStore(db *gorm.DB, storage storage.Provider, bucket string, opts ...StoreOption) *Store {
	s := &Store{db: db, storage: storage, bucket: bucket, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Batch is the full prediction output for one dataset.
type Batch struct {
	DatasetId string
	Labels    []string
	Count     int
	Records   []core.Record
}

// NewDatasetId returns upload_<unix seconds>_<8 hex chars>.csv.
func NewDatasetId(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s%d_%s%s", datasetPrefix, now.Unix(), suffix, datasetSuffix)
}

// Ingest stores the raw upload and its predictions as a new dataset.
func (s *Store) Ingest(ctx context.Context, raw []byte, table *core.Table, prediction core.Prediction, mapping core.ColumnMapping) (database.Dataset, error) {
	if len(prediction.Labels) != table.Len() {
		return database.Dataset{}, fmt.Errorf("prediction has %d labels for %d rows", len(prediction.Labels), table.Len())
	}

	columns, err := json.Marshal(table.Columns)
	if err != nil {
		return database.Dataset{}, fmt.Errorf("error encoding columns: %w", err)
	}

	now := s.now().UTC()
	id := NewDatasetId(now)

	dataset := database.Dataset{
		Id:           id,
		Columns:      datatypes.JSON(columns),
		RowCount:     table.Len(),
		SizeBytes:    int64(len(raw)),
		ObjectKey:    id,
		CreationTime: now,
	}

	built := core.BuildRecords(table, prediction, mapping)
	rows := make([]database.PredictionRecord, len(built))
	for i, rec := range built {
		rows[i] = toDatabaseRecord(id, rec)
	}

	if err := s.storage.PutObject(ctx, s.bucket, dataset.ObjectKey, bytes.NewReader(raw)); err != nil {
		slog.Error("error storing raw upload", "dataset_id", id, "error", err)
		return database.Dataset{}, fmt.Errorf("error storing raw upload: %w", err)
	}

	if err := s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		return database.CreateDataset(ctx, txn, &dataset, rows)
	}); err != nil {
		slog.Error("error committing dataset, removing raw upload", "dataset_id", id, "error", err)
		if delErr := s.storage.DeleteObject(context.WithoutCancel(ctx), s.bucket, dataset.ObjectKey); delErr != nil {
			slog.Error("error removing raw upload after failed commit", "dataset_id", id, "error", delErr)
		}
		return database.Dataset{}, fmt.Errorf("error saving predictions: %w", err)
	}

	slog.Info("dataset ingested", "dataset_id", id, "rows", dataset.RowCount, "bytes", dataset.SizeBytes)

	s.publish(ctx, messaging.DatasetEvent{
		Type:      messaging.DatasetIngested,
		DatasetId: id,
		RowCount:  dataset.RowCount,
		Labels:    distinct(prediction.Labels),
		Timestamp: now,
	})

	return dataset, nil
}

func (s *Store) publish(ctx context.Context, event messaging.DatasetEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishDatasetEvent(ctx, event); err != nil {
		slog.Warn("error publishing dataset event", "type", event.Type, "dataset_id", event.DatasetId, "error", err)
	}
}

func distinct(labels []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}

// List returns committed datasets ordered by creation time, then id.
func (s *Store) List(ctx context.Context) ([]database.Dataset, error) {
	return database.ListDatasets(ctx, s.db)
}

func (s *Store) Get(ctx context.Context, id string) (database.Dataset, error) {
	var dataset database.Dataset
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&dataset).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dataset, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return dataset, fmt.Errorf("error loading dataset %s: %w", id, err)
	}
	return dataset, nil
}

// Columns decodes the header stored with the dataset.
func Columns(dataset database.Dataset) ([]string, error) {
	var columns []string
	if err := json.Unmarshal(dataset.Columns, &columns); err != nil {
		return nil, fmt.Errorf("error decoding columns of %s: %w", dataset.Id, err)
	}
	return columns, nil
}

// Delete removes the dataset and its records in one transaction, then the raw
// upload. A raw object that cannot be removed is left as an orphan.
func (s *Store) Delete(ctx context.Context, id string) error {
	var dataset database.Dataset
	err := s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if err := txn.Where("id = ?", id).First(&dataset).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			return fmt.Errorf("error loading dataset %s: %w", id, err)
		}

		found, err := database.DeleteDataset(ctx, txn, id)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.storage.DeleteObject(ctx, s.bucket, dataset.ObjectKey); err != nil {
		slog.Error("error removing raw upload, object is orphaned", "dataset_id", id, "key", dataset.ObjectKey, "error", err)
	}

	slog.Info("dataset deleted", "dataset_id", id)

	s.publish(ctx, messaging.DatasetEvent{
		Type:      messaging.DatasetDeleted,
		DatasetId: id,
		Timestamp: s.now().UTC(),
	})

	return nil
}

func (s *Store) GetBatch(ctx context.Context, id string) (Batch, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return Batch{}, err
	}

	var rows []database.PredictionRecord
	if err := s.db.WithContext(ctx).Where("dataset_id = ?", id).Order("row_index ASC").Find(&rows).Error; err != nil {
		return Batch{}, fmt.Errorf("error loading predictions for %s: %w", id, err)
	}

	batch := Batch{
		DatasetId: id,
		Labels:    make([]string, len(rows)),
		Count:     len(rows),
		Records:   make([]core.Record, len(rows)),
	}
	for i, row := range rows {
		batch.Labels[i] = row.Label
		batch.Records[i] = toCoreRecord(row)
	}
	return batch, nil
}

// GetRecords returns one page of a dataset's records and its total row count.
func (s *Store) GetRecords(ctx context.Context, id string, offset, limit int) ([]core.Record, int, error) {
	dataset, err := s.Get(ctx, id)
	if err != nil {
		return nil, 0, err
	}

	var rows []database.PredictionRecord
	if err := s.db.WithContext(ctx).
		Where("dataset_id = ?", id).
		Order("row_index ASC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("error loading predictions for %s: %w", id, err)
	}

	records := make([]core.Record, len(rows))
	for i, row := range rows {
		records[i] = toCoreRecord(row)
	}
	return records, dataset.RowCount, nil
}

// Labels returns the predicted labels of a dataset in row order.
func (s *Store) Labels(ctx context.Context, id string) ([]string, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	labels := []string{}
	if err := s.db.WithContext(ctx).
		Model(&database.PredictionRecord{}).
		Where("dataset_id = ?", id).
		Order("row_index ASC").
		Pluck("label", &labels).Error; err != nil {
		return nil, fmt.Errorf("error loading labels for %s: %w", id, err)
	}
	return labels, nil
}

// OpenRaw streams the raw CSV of a dataset. Callers must close the reader.
func (s *Store) OpenRaw(ctx context.Context, id string) (io.ReadCloser, error) {
	dataset, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	reader, err := s.storage.GetObjectStream(ctx, s.bucket, dataset.ObjectKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			slog.Error("raw upload missing for committed dataset", "dataset_id", id, "key", dataset.ObjectKey)
			return nil, fmt.Errorf("%w: raw data for %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("error opening raw upload %s: %w", id, err)
	}
	return reader, nil
}

type DatasetRecord struct {
	DatasetId string
	core.Record
}

type RecordIterator func(yield func(rec DatasetRecord, err error) bool)

// IterRecords yields every record of every committed dataset, ordered by
// dataset creation time, dataset id and row.
func (s *Store) IterRecords(ctx context.Context) RecordIterator {
	return func(yield func(rec DatasetRecord, err error) bool) {
		datasets, err := s.List(ctx)
		if err != nil {
			yield(DatasetRecord{}, err)
			return
		}

		for _, dataset := range datasets {
			last := -1
			for {
				var rows []database.PredictionRecord
				if err := s.db.WithContext(ctx).
					Where("dataset_id = ? AND row_index > ?", dataset.Id, last).
					Order("row_index ASC").
					Limit(iterPageSize).
					Find(&rows).Error; err != nil {
					yield(DatasetRecord{}, fmt.Errorf("error loading predictions for %s: %w", dataset.Id, err))
					return
				}

				for _, row := range rows {
					if !yield(DatasetRecord{DatasetId: dataset.Id, Record: toCoreRecord(row)}, nil) {
						return
					}
				}

				if len(rows) < iterPageSize {
					break
				}
				last = rows[len(rows)-1].Row
			}
		}
	}
}

// OrphanedObjects lists raw uploads that have no committed dataset, for
// example after a crash between the object write and the commit.
func (s *Store) OrphanedObjects(ctx context.Context) ([]string, error) {
	datasets, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	committed := make(map[string]bool, len(datasets))
	for _, d := range datasets {
		committed[d.ObjectKey] = true
	}

	var orphans []string
	for obj, err := range s.storage.IterObjects(ctx, s.bucket, datasetPrefix) {
		if err != nil {
			return nil, fmt.Errorf("error listing raw uploads: %w", err)
		}
		if !committed[obj.Name] {
			orphans = append(orphans, obj.Name)
		}
	}

	return orphans, nil
}

func toDatabaseRecord(datasetId string, rec core.Record) database.PredictionRecord {
	return database.PredictionRecord{
		DatasetId:  datasetId,
		Row:        rec.Row,
		Label:      rec.Label,
		Ip:         database.NullString(rec.Ip),
		Msisdn:     database.NullString(rec.Msisdn),
		Timestamp:  database.NullString(rec.Timestamp),
		VolumeRaw:  database.NullString(rec.VolumeRaw),
		Volume:     database.NullFloat(rec.Volume),
		Confidence: database.NullFloat(rec.Confidence),
	}
}

func toCoreRecord(row database.PredictionRecord) core.Record {
	return core.Record{
		Row:        row.Row,
		Label:      row.Label,
		Ip:         database.StringPtr(row.Ip),
		Msisdn:     database.StringPtr(row.Msisdn),
		Timestamp:  database.StringPtr(row.Timestamp),
		VolumeRaw:  database.StringPtr(row.VolumeRaw),
		Volume:     database.FloatPtr(row.Volume),
		Confidence: database.FloatPtr(row.Confidence),
	}
}
