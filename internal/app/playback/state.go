// Package playback provides a per-guild playback queue on top of a voice player.
package playback

// State represents the playback state.
type State int

const (
	StateIdle    State = iota // No track playing (queue empty or stopped)
	StatePlaying              // Front track is streaming
	StatePaused               // Front track is paused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}
