package automation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrReportIncomplete is returned when a report is requested for a run that
// has not completed.
var ErrReportIncomplete = errors.New("automation: run is not complete")

// RunReport is the immutable record of a finished run, written to the archive.
type RunReport struct {
	RunID         uuid.UUID      `json:"run_id"`
	Config        *RunConfig     `json:"config"`
	TriggerReason TriggerReason  `json:"trigger_reason"`
	AdjustedAt    *time.Time     `json:"adjusted_at,omitempty"`
	CompletedAt   time.Time      `json:"completed_at"`
	Stats         LedgerStats    `json:"stats"`
	NewOrders     int            `json:"new_orders"`
	Ledger        []LedgerEntry  `json:"ledger"`
	Baseline      *OrderBaseline `json:"baseline,omitempty"`
}

// NewRunReport builds the report of a completed state.
func NewRunReport(state *RunState) (*RunReport, error) {
	if state == nil || state.Phase != PhaseComplete || state.Meta.CompletedAt == nil {
		return nil, ErrReportIncomplete
	}
	c := state.Clone()
	r := &RunReport{
		RunID:         c.Meta.RunID,
		Config:        c.Config,
		TriggerReason: c.Meta.TriggerReason,
		AdjustedAt:    c.Meta.AdjustedAt,
		CompletedAt:   *c.Meta.CompletedAt,
		Stats:         StatsOf(c.Ledger),
		Ledger:        c.Ledger,
		Baseline:      c.Baseline,
	}
	if c.Baseline != nil {
		r.NewOrders = c.Baseline.NewOrderCount
	}
	return r, nil
}

// RunArchive stores finished run reports.
type RunArchive interface {
	Archive(ctx context.Context, report *RunReport) error
}
