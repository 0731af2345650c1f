// Package audiotest provides in-memory voice transport fakes for tests.
package audiotest

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/MassimilianoBaglioni/soundboard-bot/internal/domain/audio"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/domain/track"
)

// ErrStopped is the end reason of a stream stopped by the caller.
var ErrStopped = errors.New("stream stopped")

// Stream is a controllable audio.Stream.
type Stream struct {
	Track  track.Track
	Offset time.Duration

	mu      sync.Mutex
	started chan struct{}
	done    chan struct{}
	err     error
	paused  bool
	stopped bool

	startOnce sync.Once
	doneOnce  sync.Once
}

// NewStream creates a stream for t.
func NewStream(t track.Track, offset time.Duration) *Stream {
	return &Stream{
		Track:   t,
		Offset:  offset,
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start marks the stream as started.
func (s *Stream) Start() {
	s.startOnce.Do(func() { close(s.started) })
}

// Finish ends the stream with err (nil for a normal end).
func (s *Stream) Finish(err error) {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *Stream) Started() <-chan struct{} { return s.started }
func (s *Stream) Done() <-chan struct{}    { return s.done }

func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// Paused reports the last value passed to SetPaused.
func (s *Stream) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *Stream) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.Finish(ErrStopped)
}

// Stopped reports whether Stop was called.
func (s *Stream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Transport is an in-memory audio.Transport.
type Transport struct {
	// AutoStart closes Started on every new stream.
	AutoStart bool
	// JoinErr is returned by Join when set.
	JoinErr error

	mu       sync.Mutex
	streams  []*Stream
	channels map[string]string
	joins    int
	leaves   map[string]int
	onPlay   func(*Stream)
}

var _ audio.Transport = (*Transport)(nil)

// NewTransport creates a transport whose streams start immediately.
func NewTransport() *Transport {
	return &Transport{
		AutoStart: true,
		channels:  make(map[string]string),
		leaves:    make(map[string]int),
	}
}

// OnPlay registers a callback invoked for every new stream.
func (t *Transport) OnPlay(fn func(*Stream)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPlay = fn
}

func (t *Transport) Play(guildID string, tr track.Track, offset time.Duration) audio.Stream {
	s := NewStream(tr, offset)

	t.mu.Lock()
	t.streams = append(t.streams, s)
	hook := t.onPlay
	t.mu.Unlock()

	if t.AutoStart {
		s.Start()
	}
	if hook != nil {
		hook(s)
	}
	return s
}

func (t *Transport) Join(guildID, channelID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.joins++
	if t.JoinErr != nil {
		return t.JoinErr
	}
	t.channels[guildID] = channelID
	return nil
}

func (t *Transport) Leave(guildID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.channels, guildID)
	t.leaves[guildID]++
	return nil
}

func (t *Transport) Connected(guildID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.channels[guildID]
	return ok
}

// Channel returns the voice channel the guild is connected to.
func (t *Transport) Channel(guildID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.channels[guildID]
}

// Streams returns every stream created so far.
func (t *Transport) Streams() []*Stream {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := make([]*Stream, len(t.streams))
	copy(result, t.streams)
	return result
}

// Last returns the most recent stream, or nil.
func (t *Transport) Last() *Stream {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.streams) == 0 {
		return nil
	}
	return t.streams[len(t.streams)-1]
}

// Joins returns the number of Join calls.
func (t *Transport) Joins() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.joins
}

// Leaves returns the number of Leave calls for a guild.
func (t *Transport) Leaves(guildID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.leaves[guildID]
}
