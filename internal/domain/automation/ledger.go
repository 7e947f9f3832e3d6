package automation

import (
	"fmt"
	"time"
)

// UpdateOutcome is the result of pushing a ledger entry's price to the platform.
type UpdateOutcome string

const (
	OutcomePending  UpdateOutcome = "pending"
	OutcomeSuccess  UpdateOutcome = "success"
	OutcomeFailed   UpdateOutcome = "failed"
	OutcomeExcluded UpdateOutcome = "excluded"
)

// IsValid returns true if the outcome is a known value
func (o UpdateOutcome) IsValid() bool {
	switch o {
	case OutcomePending, OutcomeSuccess, OutcomeFailed, OutcomeExcluded:
		return true
	default:
		return false
	}
}

// LedgerEntry records what a run did to one product.
// Excluded entries and restored entries always have AppliedPrice == OriginalPrice.
type LedgerEntry struct {
	ProductID     string         `json:"product_id"`
	ProductName   string         `json:"product_name"`
	OriginalPrice int64          `json:"original_price"`
	AppliedPrice  int64          `json:"applied_price"`
	Adjustment    AdjustmentKind `json:"adjustment"`
	Excluded      bool           `json:"excluded"`
	Outcome       UpdateOutcome  `json:"outcome"`
	Error         string         `json:"error,omitempty"`
	Restored      bool           `json:"restored"`
	RestoredAt    *time.Time     `json:"restored_at,omitempty"`
	RestoreError  string         `json:"restore_error,omitempty"`
	RecordedAt    time.Time      `json:"recorded_at"`
}

// LedgerStats summarizes a ledger for status reporting.
type LedgerStats struct {
	Processed int `json:"processed"`
	Adjusted  int `json:"adjusted"`
	Excluded  int `json:"excluded"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
	Restored  int `json:"restored"`
}

// Ledger is the per-run record of every product touched. Entries are unique by
// product id and keep insertion order. A Ledger is not safe for concurrent use;
// the orchestrator mutates it from a single goroutine.
type Ledger struct {
	entries []LedgerEntry
	index   map[string]int
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{index: make(map[string]int)}
}

// LedgerFromEntries rebuilds a ledger from persisted entries.
func LedgerFromEntries(entries []LedgerEntry) *Ledger {
	l := NewLedger()
	for _, e := range entries {
		if _, dup := l.index[e.ProductID]; dup {
			continue
		}
		l.index[e.ProductID] = len(l.entries)
		l.entries = append(l.entries, e)
	}
	return l
}

// Record adds a product to the ledger. Excluded products are pinned to their
// original price regardless of applied.
func (l *Ledger) Record(productID, name string, originalPrice, appliedPrice int64, excluded bool) error {
	if _, exists := l.index[productID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateLedgerEntry, productID)
	}

	entry := LedgerEntry{
		ProductID:     productID,
		ProductName:   name,
		OriginalPrice: originalPrice,
		AppliedPrice:  appliedPrice,
		Excluded:      excluded,
		Outcome:       OutcomePending,
		RecordedAt:    time.Now(),
	}
	switch {
	case excluded:
		entry.AppliedPrice = originalPrice
		entry.Adjustment = AdjustmentNone
		entry.Outcome = OutcomeExcluded
	case appliedPrice < originalPrice:
		entry.Adjustment = AdjustmentDiscounted
	case appliedPrice > originalPrice:
		entry.Adjustment = AdjustmentIncreased
	default:
		entry.Adjustment = AdjustmentNone
	}

	l.index[productID] = len(l.entries)
	l.entries = append(l.entries, entry)
	return nil
}

// MarkOutcome stores the update result for a product. Excluded entries are
// frozen and ignore the call.
func (l *Ledger) MarkOutcome(productID string, outcome UpdateOutcome, cause error) error {
	if outcome != OutcomePending && outcome != OutcomeSuccess && outcome != OutcomeFailed {
		return fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}
	entry, err := l.entry(productID)
	if err != nil {
		return err
	}
	if entry.Excluded {
		return nil
	}

	entry.Outcome = outcome
	entry.Error = ""
	if cause != nil {
		entry.Error = cause.Error()
	}
	return nil
}

// MarkRestored records that the product is back at its original price.
// Excluded entries are already at their original price, so this is a no-op for them.
func (l *Ledger) MarkRestored(productID string) error {
	entry, err := l.entry(productID)
	if err != nil {
		return err
	}
	if entry.Excluded {
		return nil
	}

	now := time.Now()
	entry.Restored = true
	entry.RestoredAt = &now
	entry.RestoreError = ""
	entry.AppliedPrice = entry.OriginalPrice
	return nil
}

// MarkRestoreFailed keeps the error of a failed restore attempt on the entry.
func (l *Ledger) MarkRestoreFailed(productID string, cause error) error {
	entry, err := l.entry(productID)
	if err != nil {
		return err
	}
	if entry.Excluded || cause == nil {
		return nil
	}
	entry.RestoreError = cause.Error()
	return nil
}

// Get returns a copy of the entry for productID.
func (l *Ledger) Get(productID string) (LedgerEntry, bool) {
	i, ok := l.index[productID]
	if !ok {
		return LedgerEntry{}, false
	}
	return copyEntry(l.entries[i]), true
}

// Len returns the number of entries
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Snapshot returns a deep copy of all entries in insertion order.
func (l *Ledger) Snapshot() []LedgerEntry {
	out := make([]LedgerEntry, len(l.entries))
	for i, e := range l.entries {
		out[i] = copyEntry(e)
	}
	return out
}

// PendingUpdates returns the entries that still have to be pushed to the platform.
func (l *Ledger) PendingUpdates() []LedgerEntry {
	var out []LedgerEntry
	for _, e := range l.entries {
		if !e.Excluded && e.Outcome == OutcomePending {
			out = append(out, copyEntry(e))
		}
	}
	return out
}

// RestoreTargets returns the entries a restoration must put back: applied
// successfully, not excluded, not restored yet. Failed updates never changed
// the platform price, so they are left alone.
func (l *Ledger) RestoreTargets() []LedgerEntry {
	var out []LedgerEntry
	for _, e := range l.entries {
		if !e.Excluded && e.Outcome == OutcomeSuccess && !e.Restored {
			out = append(out, copyEntry(e))
		}
	}
	return out
}

// Stats summarizes the ledger
func (l *Ledger) Stats() LedgerStats {
	return StatsOf(l.entries)
}

// StatsOf summarizes a slice of entries.
func StatsOf(entries []LedgerEntry) LedgerStats {
	stats := LedgerStats{Processed: len(entries)}
	for _, e := range entries {
		if e.Excluded {
			stats.Excluded++
			continue
		}
		switch e.Outcome {
		case OutcomeSuccess:
			stats.Adjusted++
		case OutcomeFailed:
			stats.Failed++
		case OutcomePending:
			stats.Pending++
		}
		if e.Restored {
			stats.Restored++
		}
	}
	return stats
}

func (l *Ledger) entry(productID string) (*LedgerEntry, error) {
	i, ok := l.index[productID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLedgerEntryNotFound, productID)
	}
	return &l.entries[i], nil
}

func copyEntry(e LedgerEntry) LedgerEntry {
	if e.RestoredAt != nil {
		at := *e.RestoredAt
		e.RestoredAt = &at
	}
	return e
}
