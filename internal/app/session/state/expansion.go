package state

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Expansion is the cancellation handle of one in-flight playlist expansion.
// Cancel is one-way; any number of goroutines may observe it.
type Expansion struct {
	ID        string
	GuildID   string
	StartedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	cancelled  chan struct{}
	cancelOnce sync.Once

	finished   chan struct{}
	finishOnce sync.Once
}

// NewExpansion creates a handle whose context derives from parent.
func NewExpansion(parent context.Context, guildID string) *Expansion {
	ctx, cancel := context.WithCancel(parent)
	return &Expansion{
		ID:        uuid.New().String(),
		GuildID:   guildID,
		StartedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		cancelled: make(chan struct{}),
		finished:  make(chan struct{}),
	}
}

// Context returns a context that ends on Cancel or Finish.
func (e *Expansion) Context() context.Context {
	return e.ctx
}

// Cancel signals cancellation. Safe to call more than once.
func (e *Expansion) Cancel() {
	e.cancelOnce.Do(func() {
		close(e.cancelled)
		e.cancel()
	})
}

// Done is closed once the handle has been cancelled.
func (e *Expansion) Done() <-chan struct{} {
	return e.cancelled
}

// Cancelled reports whether Cancel has been called.
func (e *Expansion) Cancelled() bool {
	select {
	case <-e.cancelled:
		return true
	default:
		return false
	}
}

// Finish marks the expansion task as exited.
func (e *Expansion) Finish() {
	e.finishOnce.Do(func() {
		e.cancel()
		close(e.finished)
	})
}

// Finished is closed when the expansion task has exited.
func (e *Expansion) Finished() <-chan struct{} {
	return e.finished
}
