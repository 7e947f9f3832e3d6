package automation

import (
	"errors"

	"github.com/pricecycle/backend/internal/domain/shared"
)

// Rule violations surfaced to callers of the control surface.
var (
	ErrRunInProgress    = shared.ErrInvalidState.WithMessage("an automation run is already active")
	ErrNoActiveRun      = shared.ErrInvalidState.WithMessage("no automation run is active")
	ErrInvalidRunConfig = shared.ErrInvalidInput.WithMessage("invalid run configuration")
)

// Internal invariants.
var (
	ErrInvalidPhaseTransition = errors.New("automation: invalid phase transition")
	ErrDuplicateLedgerEntry   = errors.New("automation: product already recorded in ledger")
	ErrLedgerEntryNotFound    = errors.New("automation: product not in ledger")
	ErrInvalidOutcome         = errors.New("automation: invalid update outcome")
)
