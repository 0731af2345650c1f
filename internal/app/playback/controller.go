package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/MassimilianoBaglioni/soundboard-bot/internal/domain/audio"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/domain/track"
)

// Errors
var (
	ErrNoTrack    = errors.New("no track playing")
	ErrNotPlaying = errors.New("not playing")
	ErrNotPaused  = errors.New("not paused")
)

// Controller manages playback of one guild's queue.
// queue[0] is the track currently streaming (or paused).
type Controller struct {
	mu sync.RWMutex

	guildID string
	player  audio.Player

	queue  []track.QueuedTrack
	state  State
	stream audio.Stream

	// Playback position of the current stream: position accumulated up to
	// resumedAt, which is zero while paused.
	position  time.Duration
	resumedAt time.Time
	now       func() time.Time

	// Incremented whenever the current stream is replaced or stopped,
	// so that a late Done from an old stream is ignored.
	generation uint64

	// Events
	eventCh chan Event

	ctx    context.Context
	cancel context.CancelFunc
}

// NewController creates a new playback controller for a guild.
func NewController(guildID string, player audio.Player) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		guildID: guildID,
		player:  player,
		queue:   make([]track.QueuedTrack, 0),
		state:   StateIdle,
		eventCh: make(chan Event, 32),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Events returns the event channel.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// Enqueue adds a track to the end of the queue and returns its position.
// Position 0 means the track started playing immediately.
func (c *Controller) Enqueue(qt track.QueuedTrack) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queue = append(c.queue, qt)
	pos := len(c.queue) - 1
	if c.state == StateIdle {
		c.startLocked(0, true)
	}
	return pos
}

// Pause pauses the current playback.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream == nil {
		return ErrNoTrack
	}
	if c.state != StatePlaying {
		return ErrNotPlaying
	}

	c.stream.SetPaused(true)
	c.state = StatePaused
	c.position = c.positionLocked()
	c.resumedAt = time.Time{}
	c.sendEvent(Event{Type: EventStateChanged, Track: c.currentLocked(), State: c.state})
	return nil
}

// Resume resumes paused playback.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream == nil {
		return ErrNoTrack
	}
	if c.state != StatePaused {
		return ErrNotPaused
	}

	c.stream.SetPaused(false)
	c.state = StatePlaying
	c.resumedAt = c.now()
	c.sendEvent(Event{Type: EventStateChanged, Track: c.currentLocked(), State: c.state})
	return nil
}

// Skip drops the current track and plays the next one.
func (c *Controller) Skip() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) == 0 {
		return ErrNoTrack
	}

	c.haltLocked()
	skipped := c.queue[0]
	c.queue = c.queue[1:]

	c.sendEvent(Event{Type: EventTrackSkipped, Track: &skipped, State: c.state})
	c.advanceLocked()
	return nil
}

// Seek restarts the current track at the given offset.
func (c *Controller) Seek(offset time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) == 0 || c.stream == nil {
		return ErrNoTrack
	}
	if offset < 0 {
		offset = 0
	}

	paused := c.state == StatePaused
	c.haltLocked()
	c.startLocked(offset, false)
	if paused && c.stream != nil {
		c.stream.SetPaused(true)
		c.state = StatePaused
		c.resumedAt = time.Time{}
	}
	return nil
}

// Interrupt plays qt right away. The current track is halted and re-queued
// behind qt, resuming at its current position once qt ends.
// Returns the position of qt, always 0.
func (c *Controller) Interrupt(qt track.QueuedTrack) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) > 0 && c.stream != nil {
		current := c.queue[0]
		current.Offset = c.positionLocked()
		c.haltLocked()
		c.queue[0] = current

		zlog.Debug().Msgf("track interrupted: guild_id=%s title=%s offset=%v", c.guildID, current.Track.Title, current.Offset)
	}

	c.queue = append([]track.QueuedTrack{qt}, c.queue...)
	c.startLocked(qt.Offset, true)
	return 0
}

// Position returns the playback position of the current track.
func (c *Controller) Position() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.positionLocked()
}

// Stop halts playback and clears the queue. Calling it on an idle
// controller is a no-op. Returns the removed tracks.
func (c *Controller) Stop() []track.QueuedTrack {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.haltLocked()
	removed := c.queue
	c.queue = make([]track.QueuedTrack, 0)
	return removed
}

// GetState returns the current playback state.
func (c *Controller) GetState() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// GetCurrentTrack returns the track at the front of the queue.
func (c *Controller) GetCurrentTrack() (*track.QueuedTrack, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	qt := c.currentLocked()
	return qt, qt != nil
}

// GetQueueSize returns the number of tracks, including the current one.
func (c *Controller) GetQueueSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.queue)
}

// Titles returns the titles of all queued tracks in playback order.
func (c *Controller) Titles() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	titles := make([]string, len(c.queue))
	for i, qt := range c.queue {
		titles[i] = qt.Track.Title
	}
	return titles
}

// Close stops playback and stops event delivery.
func (c *Controller) Close() {
	c.cancel()
	_ = c.Stop()
}

func (c *Controller) positionLocked() time.Duration {
	if c.stream == nil {
		return 0
	}
	if c.resumedAt.IsZero() {
		return c.position
	}
	return c.position + c.now().Sub(c.resumedAt)
}

func (c *Controller) currentLocked() *track.QueuedTrack {
	if len(c.queue) == 0 {
		return nil
	}
	qt := c.queue[0]
	return &qt
}

// haltLocked stops the current stream without touching the queue.
func (c *Controller) haltLocked() {
	c.generation++
	if c.stream != nil {
		c.stream.Stop()
		c.stream = nil
	}
	c.state = StateIdle
	c.position = 0
	c.resumedAt = time.Time{}
}

// advanceLocked starts the new front track, or goes idle.
func (c *Controller) advanceLocked() {
	if len(c.queue) == 0 {
		c.state = StateIdle
		c.sendEvent(Event{Type: EventQueueEmpty, State: c.state})
		return
	}
	c.startLocked(c.queue[0].Offset, true)
}

// startLocked streams queue[0] from offset. announce controls whether
// the track's OnStart hook fires once the stream starts.
func (c *Controller) startLocked(offset time.Duration, announce bool) {
	qt := c.queue[0]

	c.generation++
	gen := c.generation

	s := c.player.Play(c.guildID, qt.Track, offset)
	c.stream = s
	c.state = StatePlaying
	c.position = offset
	c.resumedAt = c.now()

	zlog.Debug().Msgf("stream started: guild_id=%s title=%s offset=%v", c.guildID, qt.Track.Title, offset)
	go c.watch(gen, s, qt, announce)
}

// watch follows one stream until it ends and then advances the queue.
func (c *Controller) watch(gen uint64, s audio.Stream, qt track.QueuedTrack, announce bool) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("stream watcher panicked: guild_id=%s err=%v", c.guildID, r)
		}
	}()

	started := false
	select {
	case <-s.Started():
		started = true
	case <-s.Done():
		select {
		case <-s.Started():
			started = true
		default:
		}
	}

	if started {
		if announce && qt.OnStart != nil {
			qt.OnStart()
		}
		c.sendEvent(Event{Type: EventTrackStarted, Track: &qt, State: StatePlaying})
	}

	<-s.Done()

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		// Replaced by skip, seek or stop.
		return
	}

	c.stream = nil
	if len(c.queue) > 0 {
		c.queue = c.queue[1:]
	}

	if err := s.Err(); err != nil {
		zlog.Warn().Msgf("stream failed: guild_id=%s title=%s err=%v", c.guildID, qt.Track.Title, err)
		c.sendEvent(Event{Type: EventTrackFailed, Track: &qt, State: StateIdle, Err: err})
	} else {
		c.sendEvent(Event{Type: EventTrackEnded, Track: &qt, State: StateIdle})
	}

	c.advanceLocked()
}

// sendEvent sends an event without blocking.
// If the channel is full, the event is dropped.
func (c *Controller) sendEvent(e Event) {
	e.GuildID = c.guildID
	select {
	case c.eventCh <- e:
	case <-c.ctx.Done():
	default:
	}
}
