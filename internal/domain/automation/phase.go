package automation

import "fmt"

// Phase is the lifecycle stage of the automation run.
type Phase string

const (
	// PhaseIdle means no run is active
	PhaseIdle Phase = "idle"
	// PhaseAdjusting means the bulk price change is in progress
	PhaseAdjusting Phase = "adjusting"
	// PhaseMonitoring means the run waits for a restore trigger
	PhaseMonitoring Phase = "monitoring"
	// PhaseRestoring means original prices are being put back; new triggers are ignored
	PhaseRestoring Phase = "restoring"
	// PhaseComplete is terminal and behaves like idle for starting a new run
	PhaseComplete Phase = "complete"
)

// allowedTransitions lists every legal edge of the phase machine.
var allowedTransitions = map[Phase][]Phase{
	PhaseIdle:       {PhaseAdjusting},
	PhaseComplete:   {PhaseAdjusting},
	PhaseAdjusting:  {PhaseMonitoring, PhaseRestoring, PhaseIdle},
	PhaseMonitoring: {PhaseRestoring},
	PhaseRestoring:  {PhaseComplete},
}

// IsValid returns true if the phase is a known value
func (p Phase) IsValid() bool {
	switch p {
	case PhaseIdle, PhaseAdjusting, PhaseMonitoring, PhaseRestoring, PhaseComplete:
		return true
	default:
		return false
	}
}

// String returns the string representation of Phase
func (p Phase) String() string {
	return string(p)
}

// CanStart reports whether a new run may begin from this phase.
func (p Phase) CanStart() bool {
	return p == PhaseIdle || p == PhaseComplete || p == ""
}

// CanStop reports whether stop is meaningful from this phase.
func (p Phase) CanStop() bool {
	return p != PhaseIdle && p != ""
}

// IsActive reports whether a run is in flight.
func (p Phase) IsActive() bool {
	return p == PhaseAdjusting || p == PhaseMonitoring || p == PhaseRestoring
}

// CanTransitionTo reports whether next is a legal successor of p.
func (p Phase) CanTransitionTo(next Phase) bool {
	from := p
	if from == "" {
		from = PhaseIdle
	}
	for _, allowed := range allowedTransitions[from] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ValidateTransition returns ErrInvalidPhaseTransition for illegal edges.
func ValidateTransition(from, to Phase) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidPhaseTransition, from, to)
	}
	return nil
}
