package migration_1

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

type User struct {
	Email        string `gorm:"primaryKey;size:255"`
	Name         string `gorm:"not null"`
	PasswordHash string `gorm:"not null"`
	Status       string `gorm:"size:20;not null;default:'active'"`
	CreationTime time.Time
}

func Migration(db *gorm.DB) error {
	if err := db.Migrator().CreateTable(&User{}); err != nil {
		return fmt.Errorf("error creating users table: %w", err)
	}
	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropTable(&User{}); err != nil {
		return fmt.Errorf("error dropping users table: %w", err)
	}
	return nil
}
