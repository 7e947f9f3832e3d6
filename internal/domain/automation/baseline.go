package automation

import (
	"time"

	"github.com/pricecycle/backend/internal/domain/integration"
)

// OrderBaseline is the snapshot of orders that existed when the adjustment
// finished. Only orders placed after it count toward the restore threshold.
// The snapshot fields never change after capture; NewOrderCount is derived.
type OrderBaseline struct {
	OrderCount    int        `json:"order_count"`
	OrderIDs      []string   `json:"order_ids"`
	LatestOrderAt *time.Time `json:"latest_order_at,omitempty"`
	BaselineAt    time.Time  `json:"baseline_at"`
	NewOrderCount int        `json:"new_order_count"`
	CaptureFailed bool       `json:"capture_failed,omitempty"`

	ids map[string]struct{}
}

// CaptureBaseline snapshots orders at now.
func CaptureBaseline(orders []integration.Order, now time.Time) *OrderBaseline {
	b := &OrderBaseline{
		OrderCount: len(orders),
		OrderIDs:   make([]string, 0, len(orders)),
		BaselineAt: now,
	}
	for _, o := range orders {
		b.OrderIDs = append(b.OrderIDs, o.ID)
		if o.OpenedAt.IsZero() {
			continue
		}
		if b.LatestOrderAt == nil || o.OpenedAt.After(*b.LatestOrderAt) {
			at := o.OpenedAt
			b.LatestOrderAt = &at
		}
	}
	return b
}

// EmptyBaseline is used when the order listing failed at capture time. Every
// order opened after now then counts as new.
func EmptyBaseline(now time.Time) *OrderBaseline {
	return &OrderBaseline{
		OrderIDs:      []string{},
		BaselineAt:    now,
		CaptureFailed: true,
	}
}

// CountNew returns how many of orders were placed after the baseline: opened
// strictly after BaselineAt and absent from the baseline id set. Both checks
// are needed because some backends backdate timestamps. The result is stored
// in NewOrderCount.
func (b *OrderBaseline) CountNew(orders []integration.Order) int {
	known := b.idSet()
	count := 0
	for _, o := range orders {
		if !o.OpenedAt.After(b.BaselineAt) {
			continue
		}
		if _, seen := known[o.ID]; seen {
			continue
		}
		count++
	}
	b.NewOrderCount = count
	return count
}

// Contains reports whether orderID was part of the snapshot
func (b *OrderBaseline) Contains(orderID string) bool {
	_, ok := b.idSet()[orderID]
	return ok
}

// Clone returns a deep copy.
func (b *OrderBaseline) Clone() *OrderBaseline {
	if b == nil {
		return nil
	}
	c := *b
	c.OrderIDs = append([]string(nil), b.OrderIDs...)
	if b.LatestOrderAt != nil {
		at := *b.LatestOrderAt
		c.LatestOrderAt = &at
	}
	c.ids = nil
	return &c
}

// idSet lazily indexes OrderIDs; baselines loaded from storage start without it.
func (b *OrderBaseline) idSet() map[string]struct{} {
	if b.ids == nil || len(b.ids) != len(b.OrderIDs) {
		b.ids = make(map[string]struct{}, len(b.OrderIDs))
		for _, id := range b.OrderIDs {
			b.ids[id] = struct{}{}
		}
	}
	return b.ids
}
