// Package idle provides the per-guild idle monitor.
package idle

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"
)

// Sessions exposes the session state the monitor reads.
type Sessions interface {
	LastInteraction(guildID string) (time.Time, bool)
	QueueLen(guildID string) int
}

// LeaveFunc disconnects a guild from voice.
type LeaveFunc func(guildID string)

// Config holds monitor configuration.
type Config struct {
	Interval time.Duration // Tick interval
	Timeout  time.Duration // Idle time before leaving
}

type monitor struct {
	guildID   string
	startedAt time.Time
}

// Supervisor runs at most one idle monitor per guild.
type Supervisor struct {
	mu       sync.Mutex
	monitors map[string]*monitor

	sessions Sessions
	leave    LeaveFunc
	config   Config
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSupervisor creates a new idle monitor supervisor.
func NewSupervisor(sessions Sessions, leave LeaveFunc, config Config) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		monitors: make(map[string]*monitor),
		sessions: sessions,
		leave:    leave,
		config:   config,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Ensure starts a monitor for the guild unless one is already running.
// Returns true if a new monitor was started.
func (s *Supervisor) Ensure(guildID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.monitors[guildID]; ok {
		return false
	}
	if s.ctx.Err() != nil {
		return false
	}

	m := &monitor{guildID: guildID, startedAt: s.now()}
	s.monitors[guildID] = m

	s.wg.Add(1)
	go s.run(m)

	zlog.Debug().Msgf("idle monitor started: guild_id=%s interval=%v timeout=%v", guildID, s.config.Interval, s.config.Timeout)
	return true
}

// Running reports whether the guild has a live monitor.
func (s *Supervisor) Running(guildID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.monitors[guildID]
	return ok
}

// Count returns the number of live monitors.
func (s *Supervisor) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.monitors)
}

// Close stops all monitors and waits for them to exit. Used on shutdown.
func (s *Supervisor) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Supervisor) run(m *monitor) {
	defer s.wg.Done()
	defer s.remove(m)
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("idle monitor panicked: guild_id=%s err=%v", m.guildID, r)
		}
	}()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.check(m) {
				return
			}
		}
	}
}

// check runs one tick. Returns true when the monitor should exit.
// The monitor is deregistered before leaving so a re-join during leave
// starts a fresh one.
func (s *Supervisor) check(m *monitor) bool {
	guildID := m.guildID
	last, ok := s.sessions.LastInteraction(guildID)
	if !ok {
		return true
	}

	elapsed := s.now().Sub(last)
	queued := s.sessions.QueueLen(guildID)
	if elapsed <= s.config.Timeout || queued > 0 {
		return false
	}

	zlog.Info().Msgf("idle timeout reached, leaving voice: guild_id=%s idle_for=%v", guildID, elapsed.Round(time.Second))
	s.remove(m)
	s.leave(guildID)
	return true
}

func (s *Supervisor) remove(m *monitor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.monitors[m.guildID]; ok && cur == m {
		delete(s.monitors, m.guildID)
	}
}
