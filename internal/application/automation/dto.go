package automation

import (
	"time"

	"github.com/google/uuid"

	"github.com/pricecycle/backend/internal/domain/automation"
	"github.com/pricecycle/backend/internal/domain/integration"
)

// StartRunInput carries the caller's run settings. Zero values (nil for the
// threshold, since 0 is a valid threshold) take the configured defaults.
type StartRunInput struct {
	DiscountAmount     int64
	RestoreDelay       time.Duration
	OrderThreshold     *int
	MonitoringInterval time.Duration
}

// Stats are the counters shown next to the run phase
type Stats struct {
	Processed int `json:"processed"`
	Adjusted  int `json:"adjusted"`
	Excluded  int `json:"excluded"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
	Restored  int `json:"restored"`
	NewOrders int `json:"new_orders"`
}

// RunStatus is the read model of the run
type RunStatus struct {
	RunID           *uuid.UUID               `json:"run_id,omitempty"`
	Phase           automation.Phase         `json:"phase"`
	Live            bool                     `json:"live"`
	Platform        string                   `json:"platform"`
	Config          *automation.RunConfig    `json:"config,omitempty"`
	Stats           Stats                    `json:"stats"`
	TriggerReason   automation.TriggerReason `json:"trigger_reason,omitempty"`
	AdjustedAt      *time.Time               `json:"adjusted_at,omitempty"`
	RestoreDeadline *time.Time               `json:"restore_deadline,omitempty"`
	CompletedAt     *time.Time               `json:"completed_at,omitempty"`
	TimeRemaining   *time.Duration           `json:"-"`
	LastError       string                   `json:"last_error,omitempty"`
	UpdatedAt       time.Time                `json:"updated_at"`
	Products        []automation.LedgerEntry `json:"products"`
}

// ConnectionReport is the result of a connectivity check
type ConnectionReport struct {
	Platform      string        `json:"platform"`
	OK            bool          `json:"ok"`
	Error         string        `json:"error,omitempty"`
	Latency       time.Duration `json:"-"`
	SupportsBatch bool          `json:"supports_batch"`
}

// ProductPreview shows what a run would do to one product
type ProductPreview struct {
	integration.Product
	ProposedPrice int64                     `json:"proposed_price"`
	Adjustment    automation.AdjustmentKind `json:"adjustment"`
}

// AwaitingShipmentPreview lists unshipped orders and the products they protect
type AwaitingShipmentPreview struct {
	Orders             []integration.AwaitingOrder `json:"orders"`
	ExcludedProductIDs []string                    `json:"excluded_product_ids"`
}

// PriceChangeResult reports a manual single-product price change
type PriceChangeResult struct {
	ProductID     string `json:"product_id"`
	PreviousPrice int64  `json:"previous_price"`
	NewPrice      int64  `json:"new_price"`
}
