package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TriggerReason records which signal started the restoration.
type TriggerReason string

const (
	TriggerThreshold TriggerReason = "threshold"
	TriggerDeadline  TriggerReason = "deadline"
	TriggerStopped   TriggerReason = "stopped"
)

// RunMeta holds bookkeeping that is not part of the four logical run keys.
type RunMeta struct {
	RunID           uuid.UUID     `json:"run_id"`
	AdjustedAt      *time.Time    `json:"adjusted_at,omitempty"`
	RestoreDeadline *time.Time    `json:"restore_deadline,omitempty"`
	TriggerReason   TriggerReason `json:"trigger_reason,omitempty"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
	LastError       string        `json:"last_error,omitempty"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// RunState is the persisted view of the single automation run.
type RunState struct {
	Phase    Phase          `json:"run_phase"`
	Config   *RunConfig     `json:"run_configuration"`
	Ledger   []LedgerEntry  `json:"product_ledger"`
	Baseline *OrderBaseline `json:"order_baseline"`
	Meta     RunMeta        `json:"run_meta"`
}

// NewIdleState returns the state of a process that never ran.
func NewIdleState() *RunState {
	return &RunState{Phase: PhaseIdle, Ledger: []LedgerEntry{}}
}

// Clone returns a deep copy.
func (s *RunState) Clone() *RunState {
	if s == nil {
		return nil
	}
	c := &RunState{
		Phase:    s.Phase,
		Ledger:   LedgerFromEntries(s.Ledger).Snapshot(),
		Baseline: s.Baseline.Clone(),
		Meta:     s.Meta,
	}
	if s.Config != nil {
		cfg := *s.Config
		c.Config = &cfg
	}
	c.Meta.AdjustedAt = cloneTime(s.Meta.AdjustedAt)
	c.Meta.RestoreDeadline = cloneTime(s.Meta.RestoreDeadline)
	c.Meta.CompletedAt = cloneTime(s.Meta.CompletedAt)
	return c
}

// StateStore persists the run state. Implementations must treat Save as a
// replacement of every key and return NewIdleState from Load when nothing was
// stored yet.
type StateStore interface {
	Load(ctx context.Context) (*RunState, error)
	Save(ctx context.Context, state *RunState) error
}

// Logical persisted keys.
const (
	KeyRunPhase         = "runPhase"
	KeyRunConfiguration = "runConfiguration"
	KeyProductLedger    = "productLedger"
	KeyOrderBaseline    = "orderBaseline"
	KeyRunMeta          = "runMeta"
)

// StateKeys lists every key a store writes, in a stable order.
var StateKeys = []string{
	KeyRunPhase,
	KeyRunConfiguration,
	KeyProductLedger,
	KeyOrderBaseline,
	KeyRunMeta,
}

// EncodeState splits state into its logical keys, each JSON encoded.
func EncodeState(state *RunState) (map[string][]byte, error) {
	if state == nil {
		state = NewIdleState()
	}
	ledger := state.Ledger
	if ledger == nil {
		ledger = []LedgerEntry{}
	}

	parts := map[string]any{
		KeyRunPhase:         state.Phase,
		KeyRunConfiguration: state.Config,
		KeyProductLedger:    ledger,
		KeyOrderBaseline:    state.Baseline,
		KeyRunMeta:          state.Meta,
	}

	out := make(map[string][]byte, len(parts))
	for key, value := range parts {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		out[key] = raw
	}
	return out, nil
}

// DecodeState rebuilds a state from its logical keys. Missing keys keep their
// idle defaults.
func DecodeState(values map[string][]byte) (*RunState, error) {
	state := NewIdleState()
	targets := map[string]any{
		KeyRunPhase:         &state.Phase,
		KeyRunConfiguration: &state.Config,
		KeyProductLedger:    &state.Ledger,
		KeyOrderBaseline:    &state.Baseline,
		KeyRunMeta:          &state.Meta,
	}
	for key, target := range targets {
		raw, ok := values[key]
		if !ok || len(raw) == 0 {
			continue
		}
		if err := json.Unmarshal(raw, target); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
	}
	if state.Phase == "" {
		state.Phase = PhaseIdle
	}
	if state.Ledger == nil {
		state.Ledger = []LedgerEntry{}
	}
	return state, nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
