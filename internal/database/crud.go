package database

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
)

const recordBatchSize = 200

// CreateDataset inserts the dataset row and all of its records. It must be
// called inside a transaction so that the dataset row never exists without
// its records.
func CreateDataset(ctx context.Context, txn *gorm.DB, dataset *Dataset, records []PredictionRecord) error {
	if err := txn.WithContext(ctx).Omit("Records").Create(dataset).Error; err != nil {
		return fmt.Errorf("error creating dataset: %w", err)
	}

	if len(records) > 0 {
		if err := txn.WithContext(ctx).CreateInBatches(records, recordBatchSize).Error; err != nil {
			return fmt.Errorf("error creating prediction records: %w", err)
		}
	}

	return nil
}

// DeleteDataset removes the dataset row and its records. It reports false if
// no dataset has the given id.
func DeleteDataset(ctx context.Context, txn *gorm.DB, id string) (bool, error) {
	if err := txn.WithContext(ctx).Where("dataset_id = ?", id).Delete(&PredictionRecord{}).Error; err != nil {
		slog.Error("error deleting prediction records", "dataset_id", id, "error", err)
		return false, fmt.Errorf("error deleting prediction records: %w", err)
	}

	result := txn.WithContext(ctx).Where("id = ?", id).Delete(&Dataset{})
	if result.Error != nil {
		slog.Error("error deleting dataset", "dataset_id", id, "error", result.Error)
		return false, fmt.Errorf("error deleting dataset: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

func ListDatasets(ctx context.Context, db *gorm.DB) ([]Dataset, error) {
	var datasets []Dataset
	if err := db.WithContext(ctx).Order("creation_time ASC, id ASC").Find(&datasets).Error; err != nil {
		return nil, fmt.Errorf("error listing datasets: %w", err)
	}
	return datasets, nil
}

type Counts struct {
	Datasets    int64
	Predictions int64
	Users       int64
}

func GetCounts(ctx context.Context, db *gorm.DB) (Counts, error) {
	var c Counts
	if err := db.WithContext(ctx).Model(&Dataset{}).Count(&c.Datasets).Error; err != nil {
		return c, fmt.Errorf("error counting datasets: %w", err)
	}
	if err := db.WithContext(ctx).Model(&PredictionRecord{}).Count(&c.Predictions).Error; err != nil {
		return c, fmt.Errorf("error counting predictions: %w", err)
	}
	if err := db.WithContext(ctx).Model(&User{}).Count(&c.Users).Error; err != nil {
		return c, fmt.Errorf("error counting users: %w", err)
	}
	return c, nil
}

type LabelCount struct {
	Label string
	Count int64
}

// LabelCounts returns the number of predictions per label, most frequent
// first.
func LabelCounts(ctx context.Context, db *gorm.DB) ([]LabelCount, error) {
	var counts []LabelCount
	if err := db.WithContext(ctx).
		Model(&PredictionRecord{}).
		Select("label, COUNT(*) AS count").
		Group("label").
		Order("count DESC, label ASC").
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("error counting labels: %w", err)
	}
	return counts, nil
}

type IpCount struct {
	Ip    string
	Count int64
}

// TopIps returns the n most frequent ip values, ties broken by ip.
func TopIps(ctx context.Context, db *gorm.DB, n int) ([]IpCount, error) {
	var counts []IpCount
	if err := db.WithContext(ctx).
		Model(&PredictionRecord{}).
		Select("ip, COUNT(*) AS count").
		Where("ip IS NOT NULL").
		Group("ip").
		Order("count DESC, ip ASC").
		Limit(n).
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("error counting ips: %w", err)
	}
	return counts, nil
}

// IterConfidence calls fn with every non-null confidence value.
func IterConfidence(ctx context.Context, db *gorm.DB, fn func(float64)) error {
	rows, err := db.WithContext(ctx).
		Model(&PredictionRecord{}).
		Select("confidence").
		Where("confidence IS NOT NULL").
		Rows()
	if err != nil {
		return fmt.Errorf("error loading confidence values: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return fmt.Errorf("error reading confidence value: %w", err)
		}
		fn(v)
	}
	return rows.Err()
}
