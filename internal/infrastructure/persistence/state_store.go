package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/pricecycle/backend/internal/domain/automation"
	"github.com/pricecycle/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStateStore implements automation.StateStore over the run_state table
type GormStateStore struct {
	db *gorm.DB
}

// NewGormStateStore creates a new GormStateStore
func NewGormStateStore(db *gorm.DB) *GormStateStore {
	return &GormStateStore{db: db}
}

// Load implements automation.StateStore
func (s *GormStateStore) Load(ctx context.Context) (*automation.RunState, error) {
	var records []models.RunStateRecord
	if err := s.db.WithContext(ctx).
		Where("key IN ?", automation.StateKeys).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load run state: %w", err)
	}

	values := make(map[string][]byte, len(records))
	for _, r := range records {
		values[r.Key] = r.Value
	}
	return automation.DecodeState(values)
}

// Save implements automation.StateStore. Every key is upserted in a single
// transaction so a crash never leaves a half written state.
func (s *GormStateStore) Save(ctx context.Context, state *automation.RunState) error {
	encoded, err := automation.EncodeState(state)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	records := make([]models.RunStateRecord, 0, len(encoded))
	for _, key := range automation.StateKeys {
		value, ok := encoded[key]
		if !ok {
			continue
		}
		records = append(records, models.RunStateRecord{Key: key, Value: value, UpdatedAt: now})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&records).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save run state: %w", err)
	}
	return nil
}

var _ automation.StateStore = (*GormStateStore)(nil)
