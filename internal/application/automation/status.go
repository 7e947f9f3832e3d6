package automation

import (
	"time"

	"github.com/google/uuid"

	"github.com/pricecycle/backend/internal/domain/automation"
)

func buildStatus(state *automation.RunState, platform string, live bool, now time.Time) *RunStatus {
	if state == nil {
		state = automation.NewIdleState()
	}
	phase := state.Phase
	if phase == "" {
		phase = automation.PhaseIdle
	}

	status := &RunStatus{
		Phase:           phase,
		Live:            live,
		Platform:        platform,
		Config:          state.Config,
		Stats:           statsOf(state),
		TriggerReason:   state.Meta.TriggerReason,
		AdjustedAt:      state.Meta.AdjustedAt,
		RestoreDeadline: state.Meta.RestoreDeadline,
		CompletedAt:     state.Meta.CompletedAt,
		LastError:       state.Meta.LastError,
		UpdatedAt:       state.Meta.UpdatedAt,
		Products:        state.Ledger,
	}
	if status.Products == nil {
		status.Products = []automation.LedgerEntry{}
	}
	if state.Meta.RunID != uuid.Nil {
		id := state.Meta.RunID
		status.RunID = &id
	}
	if phase == automation.PhaseMonitoring && state.Meta.RestoreDeadline != nil {
		remaining := max(state.Meta.RestoreDeadline.Sub(now), 0)
		status.TimeRemaining = &remaining
	}
	return status
}

func statsOf(state *automation.RunState) Stats {
	ls := automation.StatsOf(state.Ledger)
	stats := Stats{
		Processed: ls.Processed,
		Adjusted:  ls.Adjusted,
		Excluded:  ls.Excluded,
		Failed:    ls.Failed,
		Pending:   ls.Pending,
		Restored:  ls.Restored,
	}
	if state.Baseline != nil {
		stats.NewOrders = state.Baseline.NewOrderCount
	}
	return stats
}
