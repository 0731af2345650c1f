// Package session provides the session manager.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/MassimilianoBaglioni/soundboard-bot/internal/app/expander"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/app/idle"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/app/playback"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/app/session/registry"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/app/session/state"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/domain/audio"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/domain/playlist"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/domain/track"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/infra/config"
)

var (
	ErrNotInVoice      = errors.New("user is not in a voice channel")
	ErrVoiceJoinFailed = errors.New("failed to join voice channel")
)

// VoiceLocator finds the voice channel a user is connected to.
type VoiceLocator interface {
	UserVoiceChannel(guildID, userID string) (string, bool)
}

// TrackResolver resolves a raw request into a playable track.
type TrackResolver interface {
	Resolve(ctx context.Context, raw string) (track.Track, error)
}

// Notifier posts playback notices.
type Notifier interface {
	Hook(channelID string, t track.Track) func()
	Queued(channelID string, t track.Track)
	Failed(channelID string, t track.Track)
}

// Sounds looks up soundboard clips.
type Sounds interface {
	Track(id string) (track.Track, error)
}

// Dependencies are the external collaborators of the manager.
type Dependencies struct {
	Voice    audio.Transport
	Locator  VoiceLocator
	Resolver TrackResolver
	Lister   expander.Lister
	Catalog  expander.Catalog // nil when no catalog is configured
	Notifier Notifier
	Sounds   Sounds
}

// PlayRequest is a /play invocation.
type PlayRequest struct {
	GuildID   string
	UserID    string
	ChannelID string // Text channel for notices
	Query     string
	Requester track.Requester
}

// PlayResult describes what a play request did.
type PlayResult struct {
	// Set when a playlist expansion was started in the background.
	Expansion *state.Expansion
	Playlist  playlist.Kind

	// Set when a single track was enqueued.
	Track    *track.Track
	Position int // 0 means playing now
}

// Manager is the per-guild session lifecycle controller.
type Manager struct {
	config *config.Config

	registry *registry.GuildRegistry
	expander *expander.Expander
	idle     *idle.Supervisor

	voice    audio.Transport
	locator  VoiceLocator
	resolver TrackResolver
	notifier Notifier
	sounds   Sounds

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

// NewManager creates a new session manager.
func NewManager(cfg *config.Config, deps Dependencies) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		config:   cfg,
		registry: registry.NewGuildRegistry(deps.Voice),
		voice:    deps.Voice,
		locator:  deps.Locator,
		resolver: deps.Resolver,
		notifier: deps.Notifier,
		sounds:   deps.Sounds,
		ctx:      ctx,
		cancel:   cancel,
	}

	m.expander = expander.New(deps.Lister, deps.Catalog, m.registry, cfg.Playlist.MaxItems)
	m.idle = idle.NewSupervisor(m.registry, m.Leave, idle.Config{
		Interval: cfg.Session.IdleCheckInterval(),
		Timeout:  cfg.Session.IdleTimeout(),
	})
	m.registry.OnCreate(func(guildID string, e *registry.Entry) {
		go m.playbackLoop(guildID, e.Queue)
	})

	return m
}

// Join connects the bot to the user's voice channel, or moves it there.
func (m *Manager) Join(ctx context.Context, guildID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	channelID, ok := m.locator.UserVoiceChannel(guildID, userID)
	if !ok {
		return errors.Wrapf(ErrNotInVoice, "guild_id=%s user_id=%s", guildID, userID)
	}

	if err := m.voice.Join(guildID, channelID); err != nil {
		zlog.Error().Msgf("voice join failed: guild_id=%s channel_id=%s err=%v", guildID, channelID, err)
		return errors.Mark(errors.Wrapf(err, "guild_id=%s channel_id=%s", guildID, channelID), ErrVoiceJoinFailed)
	}

	m.registry.Touch(guildID)
	if m.idle.Ensure(guildID) {
		zlog.Debug().Msgf("idle monitor armed: guild_id=%s", guildID)
	}
	return nil
}

// Leave stops playback and disconnects from voice. Always safe to call.
func (m *Manager) Leave(guildID string) {
	m.Stop(guildID)

	if err := m.voice.Leave(guildID); err != nil {
		zlog.Warn().Msgf("voice leave failed: guild_id=%s err=%v", guildID, err)
		return
	}
	zlog.Info().Msgf("left voice: guild_id=%s", guildID)
}

// Stop cancels any in-flight playlist expansion, clears the queue and
// halts playback. Idempotent.
func (m *Manager) Stop(guildID string) {
	err := m.registry.WithQueue(guildID, func(s *state.Session, q *playback.Controller) error {
		if exp := s.TakeExpansion(); exp != nil {
			exp.Cancel()
			zlog.Info().Msgf("playlist expansion cancelled: guild_id=%s expansion_id=%s", guildID, exp.ID)
		}
		if removed := q.Stop(); len(removed) > 0 {
			zlog.Info().Msgf("queue cleared: guild_id=%s removed=%d", guildID, len(removed))
		}
		return nil
	})
	if err != nil && !errors.Is(err, registry.ErrNoActiveSession) {
		zlog.Error().Msgf("stop failed: guild_id=%s err=%v", guildID, err)
	}
}

// Clear is an alias of Stop.
func (m *Manager) Clear(guildID string) {
	m.Stop(guildID)
}

// Play joins the requester's voice channel and either starts a playlist
// expansion or resolves and enqueues a single track.
func (m *Manager) Play(ctx context.Context, req PlayRequest) (*PlayResult, error) {
	if err := m.Join(ctx, req.GuildID, req.UserID); err != nil {
		return nil, err
	}

	ref := m.expander.Normalize(playlist.Classify(req.Query))
	if ref.IsPlaylist() {
		exp, err := m.expander.Start(m.ctx, req.GuildID, ref, m.playlistSink(req), func(stats expander.Stats) {
			m.registry.Touch(req.GuildID)
		})
		if err != nil {
			return nil, err
		}
		return &PlayResult{Expansion: exp, Playlist: ref.Kind}, nil
	}

	t, err := m.resolver.Resolve(ctx, req.Query)
	if err != nil {
		zlog.Warn().Msgf("track request failed: guild_id=%s query=%s err=%v", req.GuildID, req.Query, err)
		return nil, err
	}

	pos, err := m.enqueue(req, t, nil)
	if err != nil {
		return nil, err
	}
	if pos > 0 {
		m.notifier.Queued(req.ChannelID, t)
	}

	zlog.Info().Msgf("track enqueued: guild_id=%s title=%s requester=%s position=%d", req.GuildID, t.Title, req.Requester.Name, pos)
	return &PlayResult{Track: &t, Position: pos}, nil
}

// playlistSink resolves one playlist item and enqueues it unless the
// expansion was cancelled in the meantime.
func (m *Manager) playlistSink(req PlayRequest) expander.Sink {
	return func(ctx context.Context, item string) error {
		t, err := m.resolver.Resolve(ctx, item)
		if err != nil {
			return err
		}

		_, err = m.enqueue(req, t, func() error {
			// Checked under the guild lock so that Stop is linearized against enqueues.
			if ctx.Err() != nil {
				return expander.ErrCancelled
			}
			return nil
		})
		return err
	}
}

// enqueue appends t to the guild's queue with a now-playing hook. guard, if
// set, runs under the guild lock and can veto the enqueue.
func (m *Manager) enqueue(req PlayRequest, t track.Track, guard func() error) (int, error) {
	m.registry.GetOrCreate(req.GuildID)

	pos := 0
	err := m.registry.WithQueue(req.GuildID, func(s *state.Session, q *playback.Controller) error {
		if guard != nil {
			if err := guard(); err != nil {
				return err
			}
		}
		pos = q.Enqueue(track.QueuedTrack{
			Track:     t,
			Requester: req.Requester,
			ChannelID: req.ChannelID,
			AddedAt:   time.Now(),
			OnStart:   m.notifier.Hook(req.ChannelID, t),
		})
		s.Touch()
		return nil
	})
	return pos, err
}

// Soundboard joins the user's voice channel and plays a soundboard clip
// right away. The interrupted track resumes where it was once the clip ends.
func (m *Manager) Soundboard(ctx context.Context, guildID, userID, channelID, soundID string) error {
	t, err := m.sounds.Track(soundID)
	if err != nil {
		return err
	}
	if err := m.Join(ctx, guildID, userID); err != nil {
		return err
	}

	m.registry.GetOrCreate(guildID)
	err = m.registry.WithQueue(guildID, func(s *state.Session, q *playback.Controller) error {
		q.Interrupt(track.QueuedTrack{
			Track:     t,
			Requester: track.Requester{ID: userID},
			ChannelID: channelID,
			AddedAt:   time.Now(),
		})
		s.Touch()
		return nil
	})
	if err != nil {
		return err
	}

	zlog.Info().Msgf("soundboard clip playing: guild_id=%s sound=%s", guildID, t.Title)
	return nil
}

// Skip skips the current track.
func (m *Manager) Skip(guildID string) error {
	return m.withQueue(guildID, func(q *playback.Controller) error {
		return q.Skip()
	})
}

// Pause pauses playback.
func (m *Manager) Pause(guildID string) error {
	return m.withQueue(guildID, func(q *playback.Controller) error {
		return q.Pause()
	})
}

// Resume resumes playback.
func (m *Manager) Resume(guildID string) error {
	return m.withQueue(guildID, func(q *playback.Controller) error {
		return q.Resume()
	})
}

// Seek restarts the current track at offset.
func (m *Manager) Seek(guildID string, offset time.Duration) error {
	return m.withQueue(guildID, func(q *playback.Controller) error {
		return q.Seek(offset)
	})
}

// List returns the titles in the guild's queue, current track first.
func (m *Manager) List(guildID string) []string {
	e, ok := m.registry.Lookup(guildID)
	if !ok {
		return nil
	}
	return e.Queue.Titles()
}

// Status represents a guild's session status.
type Status struct {
	Phase         state.Phase
	PlaybackState playback.State
	CurrentTrack  *track.QueuedTrack
	Position      time.Duration // Elapsed time in the current track
	QueueSize     int
	Connected     bool
	Monitored     bool // Idle monitor running
}

// GetStatus returns the guild's session status.
func (m *Manager) GetStatus(guildID string) *Status {
	status := &Status{
		Phase:     m.registry.Phase(guildID),
		Connected: m.voice.Connected(guildID),
		Monitored: m.idle.Running(guildID),
	}
	if e, ok := m.registry.Lookup(guildID); ok {
		status.PlaybackState = e.Queue.GetState()
		status.CurrentTrack, _ = e.Queue.GetCurrentTrack()
		status.QueueSize = e.Queue.GetQueueSize()
		status.Position = e.Queue.Position()
	}
	return status
}

// withQueue runs fn under the guild lock. Guilds without a session are a no-op.
func (m *Manager) withQueue(guildID string, fn func(q *playback.Controller) error) error {
	err := m.registry.WithQueue(guildID, func(_ *state.Session, q *playback.Controller) error {
		return fn(q)
	})
	if errors.Is(err, registry.ErrNoActiveSession) {
		return nil
	}
	return err
}

func (m *Manager) playbackLoop(guildID string, q *playback.Controller) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("playback loop panicked: guild_id=%s err=%v", guildID, r)
			if m.ctx.Err() == nil {
				zlog.Info().Msgf("restarting playback loop: guild_id=%s", guildID)
				go m.playbackLoop(guildID, q)
			}
		}
	}()

	for {
		select {
		case <-m.ctx.Done():
			return
		case event := <-q.Events():
			m.handlePlaybackEvent(event)
		}
	}
}

// handlePlaybackEvent handles playback events.
func (m *Manager) handlePlaybackEvent(event playback.Event) {
	zlog.Debug().Msgf("playback event: guild_id=%s type=%s", event.GuildID, event.Type)

	switch event.Type {
	case playback.EventTrackStarted:
		if event.Track != nil {
			zlog.Info().Msgf("track started: guild_id=%s title=%s requester=%s", event.GuildID, event.Track.Track.Title, event.Track.Requester.Name)
		}

	case playback.EventTrackFailed:
		if event.Track != nil && event.Track.ChannelID != "" {
			m.notifier.Failed(event.Track.ChannelID, event.Track.Track)
		}

	case playback.EventStateChanged:
		zlog.Info().Msgf("playback state changed: guild_id=%s state=%s", event.GuildID, event.State)

	case playback.EventQueueEmpty:
		zlog.Info().Msgf("queue empty: guild_id=%s", event.GuildID)
	}
}

// Close stops every session and disconnects from all voice channels.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		zlog.Info().Msgf("closing sessions: guilds=%d idle_monitors=%d", m.registry.Count(), m.idle.Count())
		m.idle.Close()
		for _, guildID := range m.registry.Guilds() {
			m.Leave(guildID)
			if e, ok := m.registry.Lookup(guildID); ok {
				e.Queue.Close()
			}
		}
		m.cancel()
	})
}
