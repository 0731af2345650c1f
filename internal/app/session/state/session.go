package state

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrExpansionInProgress is returned when a guild already has a live expansion.
var ErrExpansionInProgress = errors.New("playlist expansion already in progress")

// Session holds the per-guild state that outlives individual tracks.
type Session struct {
	mu sync.RWMutex

	guildID         string
	createdAt       time.Time
	lastInteraction time.Time
	expansion       *Expansion
}

// New creates a new session for a guild.
func New(guildID string) *Session {
	now := time.Now()
	return &Session{
		guildID:         guildID,
		createdAt:       now,
		lastInteraction: now,
	}
}

// GuildID returns the guild ID.
func (s *Session) GuildID() string {
	return s.guildID
}

// Touch sets the last interaction time to now.
func (s *Session) Touch() {
	s.TouchAt(time.Now())
}

// TouchAt sets the last interaction time.
func (s *Session) TouchAt(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastInteraction = t
}

// LastInteraction returns the last interaction time.
func (s *Session) LastInteraction() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastInteraction
}

// BeginExpansion registers exp as the live expansion.
// Fails if another expansion is still registered.
func (s *Session) BeginExpansion(exp *Expansion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expansion != nil && s.expansion != exp {
		return errors.Wrapf(ErrExpansionInProgress, "guild_id=%s expansion_id=%s", s.guildID, s.expansion.ID)
	}
	s.expansion = exp
	return nil
}

// FinishExpansion clears exp if it is still the registered expansion.
func (s *Session) FinishExpansion(exp *Expansion) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expansion == nil || s.expansion != exp {
		return false
	}
	s.expansion = nil
	return true
}

// TakeExpansion removes and returns the registered expansion, if any.
func (s *Session) TakeExpansion() *Expansion {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp := s.expansion
	s.expansion = nil
	return exp
}

// Expansion returns the registered expansion without removing it.
func (s *Session) Expansion() *Expansion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expansion
}

// Phase derives the session phase from the expansion slot and queue length.
func (s *Session) Phase(queueLen int) Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch {
	case s.expansion != nil:
		return PhaseExpanding
	case queueLen > 0:
		return PhasePlaying
	default:
		return PhaseIdle
	}
}
