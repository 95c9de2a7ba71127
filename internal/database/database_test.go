package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestCreateAndDeleteDataset(t *testing.T) {
	db, err := OpenSqlite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	ctx := context.Background()
	ip := "10.0.0.1"

	for _, id := range []string{"b", "a"} {
		dataset := &Dataset{
			Id:           id,
			Columns:      datatypes.JSON(`["ip"]`),
			RowCount:     2,
			ObjectKey:    id,
			CreationTime: time.Unix(100, 0),
		}
		records := []PredictionRecord{
			{DatasetId: id, Row: 0, Label: "x", Ip: NullString(&ip)},
			{DatasetId: id, Row: 1, Label: "y"},
		}
		require.NoError(t, CreateDataset(ctx, db, dataset, records))
	}

	datasets, err := ListDatasets(ctx, db)
	require.NoError(t, err)
	require.Len(t, datasets, 2)
	assert.Equal(t, "a", datasets[0].Id)
	assert.Equal(t, "b", datasets[1].Id)

	counts, err := GetCounts(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, Counts{Datasets: 2, Predictions: 4}, counts)

	found, err := DeleteDataset(ctx, db, "a")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = DeleteDataset(ctx, db, "a")
	require.NoError(t, err)
	assert.False(t, found)

	counts, err = GetCounts(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, Counts{Datasets: 1, Predictions: 2}, counts)
}

func TestMigrationsFromScratch(t *testing.T) {
	db, err := OpenSqlite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	assert.True(t, db.Migrator().HasTable(&Dataset{}))
	assert.True(t, db.Migrator().HasTable(&PredictionRecord{}))
	assert.True(t, db.Migrator().HasTable(&User{}))

	// Migrating again is a no-op.
	require.NoError(t, GetMigrator(db).Migrate())
}

func TestNullConversions(t *testing.T) {
	assert.Nil(t, StringPtr(NullString(nil)))
	assert.Nil(t, FloatPtr(NullFloat(nil)))

	s, f := "v", 0.5
	assert.Equal(t, "v", *StringPtr(NullString(&s)))
	assert.Equal(t, 0.5, *FloatPtr(NullFloat(&f)))
}
