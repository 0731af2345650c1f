// Package audio defines the contracts between the playback queue and the voice transport.
package audio

import (
	"time"

	"github.com/MassimilianoBaglioni/soundboard-bot/internal/domain/track"
)

// Stream is a single track being sent to a voice connection.
type Stream interface {
	// Started is closed once the first audio frame has been sent.
	Started() <-chan struct{}
	// Done is closed when the stream ends for any reason.
	Done() <-chan struct{}
	// Err returns the reason the stream ended. Nil means the track finished normally.
	Err() error
	SetPaused(paused bool)
	Stop()
}

// Player starts streams on a guild's voice connection.
type Player interface {
	Play(guildID string, t track.Track, offset time.Duration) Stream
}

// Transport is the voice layer: connection management plus playback.
type Transport interface {
	Player
	Join(guildID, channelID string) error
	Leave(guildID string) error
	Connected(guildID string) bool
}
