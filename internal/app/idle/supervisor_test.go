package idle

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeSessions struct {
	mu       sync.Mutex
	last     map[string]time.Time
	queueLen map[string]int
	panicOn  string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		last:     make(map[string]time.Time),
		queueLen: make(map[string]int),
	}
}

func (f *fakeSessions) set(guildID string, last time.Time, queued int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last[guildID] = last
	f.queueLen[guildID] = queued
}

func (f *fakeSessions) LastInteraction(guildID string) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if guildID == f.panicOn {
		panic("boom")
	}
	t, ok := f.last[guildID]
	return t, ok
}

func (f *fakeSessions) QueueLen(guildID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queueLen[guildID]
}

type leaveRecorder struct {
	mu     sync.Mutex
	guilds []string
}

func (l *leaveRecorder) leave(guildID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.guilds = append(l.guilds, guildID)
}

func (l *leaveRecorder) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.guilds)
}

func TestSupervisor_Check(t *testing.T) {
	const timeout = 15 * time.Minute
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		last      time.Time
		queued    int
		wantLeave bool
	}{
		{
			name:      "idle past timeout with empty queue leaves",
			last:      now.Add(-(timeout + time.Second)),
			queued:    0,
			wantLeave: true,
		},
		{
			name:      "idle past timeout with queued tracks stays",
			last:      now.Add(-(timeout + time.Second)),
			queued:    2,
			wantLeave: false,
		},
		{
			name:      "recent interaction stays",
			last:      now.Add(-time.Minute),
			queued:    0,
			wantLeave: false,
		},
		{
			name:      "exactly at timeout stays",
			last:      now.Add(-timeout),
			queued:    0,
			wantLeave: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := newFakeSessions()
			sessions.set("g1", tt.last, tt.queued)
			rec := &leaveRecorder{}

			s := NewSupervisor(sessions, rec.leave, Config{Interval: time.Minute, Timeout: timeout})
			s.now = func() time.Time { return now }

			exit := s.check(&monitor{guildID: "g1"})

			assert.Equal(t, tt.wantLeave, exit)
			assert.Equal(t, tt.wantLeave, rec.count() == 1)
		})
	}
}

func TestSupervisor_EnsureStartsOnce(t *testing.T) {
	sessions := newFakeSessions()
	sessions.set("g1", time.Now(), 0)

	s := NewSupervisor(sessions, (&leaveRecorder{}).leave, Config{Interval: time.Hour, Timeout: time.Hour})
	defer s.Close()

	assert.True(t, s.Ensure("g1"))
	assert.False(t, s.Ensure("g1"))
	assert.True(t, s.Ensure("g2"))

	assert.True(t, s.Running("g1"))
	assert.Equal(t, 2, s.Count())
}

func TestSupervisor_MonitorLeavesAndExits(t *testing.T) {
	sessions := newFakeSessions()
	sessions.set("g1", time.Now().Add(-time.Hour), 0)
	rec := &leaveRecorder{}

	s := NewSupervisor(sessions, rec.leave, Config{Interval: 5 * time.Millisecond, Timeout: time.Minute})
	defer s.Close()

	s.Ensure("g1")

	assert.Eventually(t, func() bool { return rec.count() == 1 && !s.Running("g1") }, time.Second, 5*time.Millisecond)

	// The guild can be supervised again after the monitor exited.
	sessions.set("g1", time.Now(), 0)
	assert.True(t, s.Ensure("g1"))
}

func TestSupervisor_MonitorKeepsRunningWhileQueued(t *testing.T) {
	sessions := newFakeSessions()
	sessions.set("g1", time.Now().Add(-time.Hour), 1)
	rec := &leaveRecorder{}

	s := NewSupervisor(sessions, rec.leave, Config{Interval: 5 * time.Millisecond, Timeout: time.Minute})
	defer s.Close()

	s.Ensure("g1")
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, 0, rec.count())
	assert.True(t, s.Running("g1"))

	// Once the queue drains the next tick leaves.
	sessions.set("g1", time.Now().Add(-time.Hour), 0)
	assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSupervisor_PanicIsRecovered(t *testing.T) {
	sessions := newFakeSessions()
	sessions.panicOn = "g1"

	s := NewSupervisor(sessions, (&leaveRecorder{}).leave, Config{Interval: 5 * time.Millisecond, Timeout: time.Minute})
	defer s.Close()

	s.Ensure("g1")
	assert.Eventually(t, func() bool { return !s.Running("g1") }, time.Second, 5*time.Millisecond)
}

func TestSupervisor_RejoinDuringLeave(t *testing.T) {
	sessions := newFakeSessions()
	sessions.set("g1", time.Now().Add(-time.Hour), 0)

	var (
		s         *Supervisor
		restarted = make(chan bool, 1)
	)
	leave := func(guildID string) {
		// A /play arriving while the old session is torn down.
		sessions.set(guildID, time.Now(), 0)
		restarted <- s.Ensure(guildID)
	}

	s = NewSupervisor(sessions, leave, Config{Interval: 5 * time.Millisecond, Timeout: time.Minute})
	defer s.Close()

	s.Ensure("g1")

	select {
	case ok := <-restarted:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("monitor never left")
	}

	// The exiting monitor must not remove its replacement.
	assert.Never(t, func() bool { return !s.Running("g1") }, 50*time.Millisecond, 5*time.Millisecond)
}
