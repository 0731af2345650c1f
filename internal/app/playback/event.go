package playback

import "github.com/MassimilianoBaglioni/soundboard-bot/internal/domain/track"

// EventType represents a playback event type.
type EventType int

const (
	EventTrackStarted EventType = iota // Voice layer sent the first frame
	EventTrackEnded                    // Track finished playing
	EventTrackSkipped                  // Track was skipped
	EventTrackFailed                   // Track could not be streamed
	EventStateChanged                  // Playback state changed (pause/resume)
	EventQueueEmpty                    // Queue became empty
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackStarted:
		return "track_started"
	case EventTrackEnded:
		return "track_ended"
	case EventTrackSkipped:
		return "track_skipped"
	case EventTrackFailed:
		return "track_failed"
	case EventStateChanged:
		return "state_changed"
	case EventQueueEmpty:
		return "queue_empty"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type    EventType
	GuildID string
	Track   *track.QueuedTrack // Affected track (nil for some events)
	State   State              // Playback state after the event
	Err     error              // Set for EventTrackFailed
}
