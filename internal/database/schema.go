package database

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
)

// Dataset is one committed upload. A dataset row exists only once all of its
// prediction records have been written in the same transaction.
type Dataset struct {
	Id string `gorm:"primaryKey;size:64"`

	Columns   datatypes.JSON `gorm:"type:jsonb;not null"` // ["ip","timestamp",…]
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

const (
	UserActive   string = "active"
	UserDisabled string = "disabled"
)

type User struct {
	Email        string `gorm:"primaryKey;size:255"`
	Name         string `gorm:"not null"`
	PasswordHash string `gorm:"not null"`
	Status       string `gorm:"size:20;not null;default:'active'"`
	CreationTime time.Time
}
