package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry is one row of the storage_entries table.
type Entry struct {
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
	Key       string    `gorm:"primaryKey;size:128"`
	Value     string    `gorm:"type:text;not null"`
}

// TableName specifies the table name for Entry.
func (Entry) TableName() string {
	return "storage_entries"
}

// GormStore keeps entries in PostgreSQL.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps db. The caller migrates Entry (see database.Open).
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}
	return &GormStore{db: db}, nil
}

// Get implements Store.
func (g *GormStore) Get(ctx context.Context, key string) (string, error) {
	var entry Entry
	err := g.db.WithContext(ctx).Where("key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("storage: get %q: %w", key, err)
	}
	return entry.Value, nil
}

// Set implements Store as an upsert.
func (g *GormStore) Set(ctx context.Context, key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	entry := Entry{Key: key, Value: value}
	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("storage: set %q: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (g *GormStore) Delete(ctx context.Context, key string) error {
	if err := g.db.WithContext(ctx).Where("key = ?", key).Delete(&Entry{}).Error; err != nil {
		return fmt.Errorf("storage: delete %q: %w", key, err)
	}
	return nil
}

var _ Store = (*GormStore)(nil)
