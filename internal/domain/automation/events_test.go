package automation

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/pricecycle/backend/internal/domain/shared"
)

func TestRunEvents(t *testing.T) {
	runID := uuid.New()

	tests := []struct {
		name     string
		event    shared.DomainEvent
		wantType string
	}{
		{"phase changed", NewPhaseChangedEvent(runID, PhaseAdjusting, PhaseMonitoring, LedgerStats{Processed: 2}), EventTypePhaseChanged},
		{"restore triggered", NewRestoreTriggeredEvent(runID, TriggerThreshold, 3), EventTypeRestoreTriggered},
		{"run failed", NewRunFailedEvent(runID, errors.New("boom")), EventTypeRunFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.event.EventType())
			assert.Equal(t, runID, tt.event.AggregateID())
			assert.Equal(t, AggregateTypeRun, tt.event.AggregateType())
			assert.NotEqual(t, uuid.Nil, tt.event.EventID())
			assert.False(t, tt.event.OccurredAt().IsZero())
		})
	}
}

func TestNewRunFailedEvent_NilCause(t *testing.T) {
	assert.Empty(t, NewRunFailedEvent(uuid.New(), nil).Error)
}
