package models

import "time"

// RunStateRecord is one logical state key (runPhase, productLedger, ...) with
// its JSON encoded value.
type RunStateRecord struct {
	Key       string    `gorm:"column:key;type:varchar(64);primaryKey"`
	Value     []byte    `gorm:"column:value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName returns the table name for GORM
func (RunStateRecord) TableName() string {
	return "run_state"
}
