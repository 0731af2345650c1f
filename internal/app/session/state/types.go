// Package state provides per-guild session state.
package state

// Phase represents what a guild session is currently doing.
type Phase int

const (
	PhaseIdle      Phase = iota // Nothing queued, no expansion running
	PhaseExpanding              // A playlist expansion is in flight
	PhasePlaying                // Queue is non-empty
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseExpanding:
		return "expanding"
	case PhasePlaying:
		return "playing"
	default:
		return "unknown"
	}
}
