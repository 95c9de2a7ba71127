package records

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"ipdr-backend/internal/core"
	"ipdr-backend/internal/database"
	"ipdr-backend/internal/messaging"
	"ipdr-backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testBucket = "uploads"

func createStore(t *testing.T, opts ...StoreOption) (*Store, *gorm.DB, *storage.LocalProvider) {
	t.Helper()

	dir := t.TempDir()
	db, err := database.OpenSqlite(filepath.Join(dir, "db", "test.db"))
	require.NoError(t, err)

	provider, err := storage.NewLocalProvider(filepath.Join(dir, "storage"))
	require.NoError(t, err)

	return NewStore(db, provider, testBucket, opts...), db, provider
}

func ingest(t *testing.T, store *Store, csv string) database.Dataset {
	t.Helper()

	table, err := core.ReadTable(strings.NewReader(csv))
	require.NoError(t, err)

	labels := make([]string, table.Len())
	confidence := make([]float64, table.Len())
	for i := range labels {
		labels[i] = []string{"normal", "suspicious"}[i%2]
		confidence[i] = 0.5 + float64(i%5)/10
	}
	prediction := core.Prediction{Labels: labels, Confidence: core.ConfidenceResult{Values: confidence}}

	dataset, err := store.Ingest(context.Background(), []byte(csv), table, prediction, core.ResolveKeyColumns(table.Columns))
	require.NoError(t, err)
	return dataset
}

func TestNewDatasetId(t *testing.T) {
	id := NewDatasetId(time.Unix(1700000000, 0))
	assert.Regexp(t, regexp.MustCompile(`^upload_1700000000_[0-9a-f]{8}\.csv$`), id)
	assert.NotEqual(t, id, NewDatasetId(time.Unix(1700000000, 0)))
}

func TestIngestRowInvariants(t *testing.T) {
	store, _, _ := createStore(t)
	ctx := context.Background()

	dataset := ingest(t, store, "ip,timestamp,msisdn,data_volume\n10.0.0.1,2025-01-01T00:00:00Z,+100,10\n10.0.0.2,,,\n10.0.0.3,2025-01-02T00:00:00Z,+300,x\n")
	assert.Equal(t, 3, dataset.RowCount)

	batch, err := store.GetBatch(ctx, dataset.Id)
	require.NoError(t, err)

	assert.Equal(t, dataset.Id, batch.DatasetId)
	assert.Equal(t, 3, batch.Count)
	assert.Len(t, batch.Labels, 3)
	assert.Len(t, batch.Records, 3)
	for i, rec := range batch.Records {
		assert.Equal(t, i, rec.Row)
		assert.Equal(t, batch.Labels[i], rec.Label)
	}

	assert.Equal(t, "10.0.0.1", *batch.Records[0].Ip)
	assert.Equal(t, 10.0, *batch.Records[0].Volume)
	assert.Nil(t, batch.Records[1].Timestamp)
	assert.Nil(t, batch.Records[1].VolumeRaw)
	assert.Equal(t, "x", *batch.Records[2].VolumeRaw)
	assert.Nil(t, batch.Records[2].Volume)
	assert.InDelta(t, 0.7, *batch.Records[2].Confidence, 1e-9)

	columns, err := Columns(dataset)
	require.NoError(t, err)
	assert.Equal(t, []string{"ip", "timestamp", "msisdn", "data_volume"}, columns)

	raw, err := store.OpenRaw(ctx, dataset.Id)
	require.NoError(t, err)
	defer raw.Close()
	data, err := io.ReadAll(raw)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "ip,timestamp"))
}

func TestIngestWithoutConfidence(t *testing.T) {
	store, _, _ := createStore(t)
	ctx := context.Background()

	table, err := core.ReadTable(strings.NewReader("bytes\n1\n2\n"))
	require.NoError(t, err)
	prediction := core.Prediction{Labels: []string{"a", "b"}, Confidence: core.ConfidenceResult{Err: core.ErrNoProbabilityOutput}}

	dataset, err := store.Ingest(ctx, []byte("bytes\n1\n2\n"), table, prediction, core.ResolveKeyColumns(table.Columns))
	require.NoError(t, err)

	batch, err := store.GetBatch(ctx, dataset.Id)
	require.NoError(t, err)
	for _, rec := range batch.Records {
		assert.Nil(t, rec.Confidence)
		assert.Nil(t, rec.Ip)
	}
}

func TestIngestLabelCountMismatch(t *testing.T) {
	store, _, _ := createStore(t)

	table, err := core.ReadTable(strings.NewReader("bytes\n1\n2\n"))
	require.NoError(t, err)

	_, err = store.Ingest(context.Background(), nil, table, core.Prediction{Labels: []string{"a"}}, core.ColumnMapping{})
	assert.Error(t, err)
}

func TestIngestFailedCommitRemovesRawUpload(t *testing.T) {
	store, db, provider := createStore(t)
	ctx := context.Background()

	require.NoError(t, db.Migrator().DropTable(&database.PredictionRecord{}))

	table, err := core.ReadTable(strings.NewReader("bytes\n1\n"))
	require.NoError(t, err)

	_, err = store.Ingest(ctx, []byte("bytes\n1\n"), table, core.Prediction{Labels: []string{"a"}}, core.ColumnMapping{})
	require.Error(t, err)

	datasets, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, datasets, "no dataset row may exist without its records")

	objects, err := provider.ListObjects(ctx, testBucket, "")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestListOrder(t *testing.T) {
	clock := time.Unix(1000, 0)
	store, _, _ := createStore(t, WithClock(func() time.Time { return clock }))

	first := ingest(t, store, "bytes\n1\n")
	clock = clock.Add(time.Second)
	second := ingest(t, store, "bytes\n2\n")
	third := ingest(t, store, "bytes\n3\n")

	datasets, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, datasets, 3)
	assert.Equal(t, first.Id, datasets[0].Id)

	tail := []string{datasets[1].Id, datasets[2].Id}
	assert.ElementsMatch(t, []string{second.Id, third.Id}, tail)
	assert.Less(t, tail[0], tail[1], "ties on creation time are broken by id")
}

func TestDelete(t *testing.T) {
	queue := messaging.NewInMemoryQueue(10)
	store, _, provider := createStore(t, WithPublisher(queue))
	ctx := context.Background()

	keep := ingest(t, store, "bytes\n1\n2\n")
	drop := ingest(t, store, "bytes\n3\n")

	require.NoError(t, store.Delete(ctx, drop.Id))

	_, err := store.GetBatch(ctx, drop.Id)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.OpenRaw(ctx, drop.Id)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Delete(ctx, drop.Id), ErrNotFound)

	objects, err := provider.ListObjects(ctx, testBucket, "")
	require.NoError(t, err)
	assert.Equal(t, []storage.Object{{Name: keep.ObjectKey, Size: keep.SizeBytes}}, objects)

	var events []messaging.DatasetEvent
	for len(queue.Tasks()) > 0 {
		task := <-queue.Tasks()
		var event messaging.DatasetEvent
		require.NoError(t, json.Unmarshal(task.Payload(), &event))
		events = append(events, event)
	}
	require.Len(t, events, 3)
	assert.Equal(t, messaging.DatasetIngested, events[0].Type)
	assert.Equal(t, []string{"normal", "suspicious"}, events[0].Labels)
	assert.Equal(t, messaging.DatasetDeleted, events[2].Type)
	assert.Equal(t, drop.Id, events[2].DatasetId)
}

func TestGetRecords(t *testing.T) {
	store, _, _ := createStore(t)
	ctx := context.Background()

	dataset := ingest(t, store, "bytes\n0\n1\n2\n3\n4\n")

	records, total, err := store.GetRecords(ctx, dataset.Id, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, records, 2)
	assert.Equal(t, 2, records[0].Row)
	assert.Equal(t, 3, records[1].Row)

	records, total, err = store.GetRecords(ctx, dataset.Id, 10, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Empty(t, records)

	_, _, err = store.GetRecords(ctx, "missing", 0, 2)
	assert.ErrorIs(t, err, ErrNotFound)

	labels, err := store.Labels(ctx, dataset.Id)
	require.NoError(t, err)
	assert.Equal(t, []string{"normal", "suspicious", "normal", "suspicious", "normal"}, labels)

	_, err = store.Labels(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIterRecords(t *testing.T) {
	clock := time.Unix(1000, 0)
	store, _, _ := createStore(t, WithClock(func() time.Time { clock = clock.Add(time.Second); return clock }))

	var csv bytes.Buffer
	csv.WriteString("bytes\n")
	for i := 0; i < iterPageSize+5; i++ {
		csv.WriteString("1\n")
	}
	first := ingest(t, store, csv.String())
	second := ingest(t, store, "bytes\n1\n2\n")

	var got []DatasetRecord
	for rec, err := range store.IterRecords(context.Background()) {
		require.NoError(t, err)
		got = append(got, rec)
	}

	require.Len(t, got, iterPageSize+5+2)
	for i := 0; i < iterPageSize+5; i++ {
		assert.Equal(t, first.Id, got[i].DatasetId)
		assert.Equal(t, i, got[i].Row)
	}
	assert.Equal(t, second.Id, got[len(got)-1].DatasetId)
	assert.Equal(t, 1, got[len(got)-1].Row)
}

func TestOrphanedObjects(t *testing.T) {
	store, _, provider := createStore(t)
	ctx := context.Background()

	ingest(t, store, "bytes\n1\n")
	require.NoError(t, provider.PutObject(ctx, testBucket, "upload_1_deadbeef.csv", strings.NewReader("bytes\n1\n")))
	require.NoError(t, provider.PutObject(ctx, testBucket, "notes.txt", strings.NewReader("x")))

	orphans, err := store.OrphanedObjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"upload_1_deadbeef.csv"}, orphans)
}
