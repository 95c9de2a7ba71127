package migration_0

import (
	"database/sql"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Snapshot of the initial schema. Later migrations must not change these
// types.

type Dataset struct {
	Id string `gorm:"primaryKey;size:64"`

	Columns   datatypes.JSON `gorm:"type:jsonb;not null"`
	RowCount  int            `gorm:"not null"`
	SizeBytes int64
	ObjectKey string `gorm:"size:255;not null"`

	CreationTime time.Time `gorm:"index"`

	Records []PredictionRecord `gorm:"foreignKey:DatasetId;constraint:OnDelete:CASCADE"`
}

type PredictionRecord struct {
	DatasetId string `gorm:"primaryKey;size:64"`
	Row       int    `gorm:"column:row_index;primaryKey;autoIncrement:false"`

	Label string `gorm:"index;not null"`

	Ip        sql.NullString `gorm:"index"`
	Msisdn    sql.NullString
	Timestamp sql.NullString
	VolumeRaw sql.NullString
	Volume    sql.NullFloat64

	Confidence sql.NullFloat64
}

func Migration(db *gorm.DB) error {
	if err := db.AutoMigrate(&Dataset{}, &PredictionRecord{}); err != nil {
		return fmt.Errorf("initial migration failed: %w", err)
	}
	return nil
}
