// Package registry provides the per-guild session registry.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/MassimilianoBaglioni/soundboard-bot/internal/app/playback"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/app/session/state"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/domain/audio"
)

var (
	ErrNoActiveSession = errors.New("no active session")
)

// Entry is one guild's slot in the registry.
// mu serializes every queue operation for the guild.
type Entry struct {
	mu sync.Mutex

	Session *state.Session
	Queue   *playback.Controller
}

// GuildRegistry maps guild IDs to session entries with per-guild serialization.
// The map lock is held only for lookup and insert, so guilds never block each other.
type GuildRegistry struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	player   audio.Player
	onCreate func(guildID string, e *Entry)
}

// NewGuildRegistry creates a new guild registry. Queues stream through player.
func NewGuildRegistry(player audio.Player) *GuildRegistry {
	return &GuildRegistry{
		entries: make(map[string]*Entry),
		player:  player,
	}
}

// OnCreate registers a callback invoked once for every new entry.
// Must be called before the registry is shared.
func (r *GuildRegistry) OnCreate(fn func(guildID string, e *Entry)) {
	r.onCreate = fn
}

// GetOrCreate returns the entry for a guild, creating it lazily.
func (r *GuildRegistry) GetOrCreate(guildID string) *Entry {
	r.mu.RLock()
	e, ok := r.entries[guildID]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	if e, ok = r.entries[guildID]; ok {
		r.mu.Unlock()
		return e
	}
	e = &Entry{
		Session: state.New(guildID),
		Queue:   playback.NewController(guildID, r.player),
	}
	r.entries[guildID] = e
	r.mu.Unlock()

	if r.onCreate != nil {
		r.onCreate(guildID, e)
	}
	return e
}

// Lookup returns the entry for a guild if it exists.
func (r *GuildRegistry) Lookup(guildID string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[guildID]
	return e, ok
}

// WithQueue runs fn with exclusive access to the guild's queue and session.
// Calls for the same guild are linearized.
func (r *GuildRegistry) WithQueue(guildID string, fn func(s *state.Session, q *playback.Controller) error) error {
	e, ok := r.Lookup(guildID)
	if !ok {
		return errors.Wrapf(ErrNoActiveSession, "guild_id=%s", guildID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.Session, e.Queue)
}

// Touch updates the guild's last interaction time, creating the entry if needed.
func (r *GuildRegistry) Touch(guildID string) {
	r.GetOrCreate(guildID).Session.Touch()
}

// LastInteraction returns the guild's last interaction time.
func (r *GuildRegistry) LastInteraction(guildID string) (time.Time, bool) {
	e, ok := r.Lookup(guildID)
	if !ok {
		return time.Time{}, false
	}
	return e.Session.LastInteraction(), true
}

// SetCancellation registers exp as the guild's in-flight expansion.
func (r *GuildRegistry) SetCancellation(guildID string, exp *state.Expansion) error {
	return r.GetOrCreate(guildID).Session.BeginExpansion(exp)
}

// ClearCancellation removes exp if it is still the registered handle.
func (r *GuildRegistry) ClearCancellation(guildID string, exp *state.Expansion) bool {
	e, ok := r.Lookup(guildID)
	if !ok {
		return false
	}
	return e.Session.FinishExpansion(exp)
}

// TakeCancellation atomically removes and returns the guild's expansion handle.
func (r *GuildRegistry) TakeCancellation(guildID string) *state.Expansion {
	e, ok := r.Lookup(guildID)
	if !ok {
		return nil
	}
	return e.Session.TakeExpansion()
}

// QueueLen returns the number of tracks queued for the guild.
func (r *GuildRegistry) QueueLen(guildID string) int {
	e, ok := r.Lookup(guildID)
	if !ok {
		return 0
	}
	return e.Queue.GetQueueSize()
}

// Phase returns the guild's session phase.
func (r *GuildRegistry) Phase(guildID string) state.Phase {
	e, ok := r.Lookup(guildID)
	if !ok {
		return state.PhaseIdle
	}
	return e.Session.Phase(e.Queue.GetQueueSize())
}

// Guilds returns all guild IDs in the registry, sorted.
func (r *GuildRegistry) Guilds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, 0, len(r.entries))
	for id := range r.entries {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// Count returns the number of guilds.
func (r *GuildRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
