package automation

import (
	"github.com/google/uuid"

	"github.com/pricecycle/backend/internal/domain/shared"
)

// AggregateTypeRun is the aggregate type carried by run events.
const AggregateTypeRun = "AutomationRun"

// Event types published by the orchestrator.
const (
	EventTypePhaseChanged     = "automation.phase_changed"
	EventTypeRestoreTriggered = "automation.restore_triggered"
	EventTypeRunFailed        = "automation.run_failed"
)

// PhaseChangedEvent is published on every phase transition.
type PhaseChangedEvent struct {
	shared.BaseDomainEvent
	From  Phase       `json:"from"`
	To    Phase       `json:"to"`
	Stats LedgerStats `json:"stats"`
}

// NewPhaseChangedEvent creates a PhaseChangedEvent
func NewPhaseChangedEvent(runID uuid.UUID, from, to Phase, stats LedgerStats) *PhaseChangedEvent {
	return &PhaseChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePhaseChanged, AggregateTypeRun, runID),
		From:            from,
		To:              to,
		Stats:           stats,
	}
}

// RestoreTriggeredEvent is published once per run, when the first trigger wins.
type RestoreTriggeredEvent struct {
	shared.BaseDomainEvent
	Reason        TriggerReason `json:"reason"`
	NewOrderCount int           `json:"new_order_count"`
}

// NewRestoreTriggeredEvent creates a RestoreTriggeredEvent
func NewRestoreTriggeredEvent(runID uuid.UUID, reason TriggerReason, newOrders int) *RestoreTriggeredEvent {
	return &RestoreTriggeredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRestoreTriggered, AggregateTypeRun, runID),
		Reason:          reason,
		NewOrderCount:   newOrders,
	}
}

// RunFailedEvent is published when the adjustment aborts and the run returns to idle.
type RunFailedEvent struct {
	shared.BaseDomainEvent
	Error string `json:"error"`
}

// NewRunFailedEvent creates a RunFailedEvent
func NewRunFailedEvent(runID uuid.UUID, cause error) *RunFailedEvent {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &RunFailedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRunFailed, AggregateTypeRun, runID),
		Error:           msg,
	}
}
