// Package notification provides the notification manager for chat notices.
package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/MassimilianoBaglioni/soundboard-bot/internal/domain/track"
)

const defaultSendTimeout = 5 * time.Second

// Sender posts a message to a text channel.
type Sender interface {
	SendMessage(channelID, content string) error
}

// Manager sends playback notices to text channels.
// Sends never block the caller for longer than the configured timeout.
type Manager struct {
	sender  Sender
	timeout time.Duration

	mu   sync.Mutex
	sent uint64
}

// NewManager creates a new notification manager.
func NewManager(sender Sender) *Manager {
	return &Manager{
		sender:  sender,
		timeout: defaultSendTimeout,
	}
}

func (m *Manager) setTimeout(d time.Duration) {
	m.timeout = d
}

// NowPlayingText formats the now-playing notice.
func NowPlayingText(t track.Track) string {
	return fmt.Sprintf("**Now playing:** %s", t.Markdown())
}

// QueuedText formats the added-to-queue notice.
func QueuedText(t track.Track) string {
	return fmt.Sprintf("**Added to the queue:** %s", t.Markdown())
}

// FailedText formats the notice for a track that could not be streamed.
func FailedText(t track.Track) string {
	return fmt.Sprintf("Could not play %s, skipping.", t.Markdown())
}

// NowPlaying announces that t started playing.
func (m *Manager) NowPlaying(channelID string, t track.Track) {
	m.notify(channelID, NowPlayingText(t))
}

// Queued announces that t was appended behind other tracks.
func (m *Manager) Queued(channelID string, t track.Track) {
	m.notify(channelID, QueuedText(t))
}

// Failed announces that t was skipped because it could not be streamed.
func (m *Manager) Failed(channelID string, t track.Track) {
	m.notify(channelID, FailedText(t))
}

// Hook returns an OnStart callback that announces t at most once.
func (m *Manager) Hook(channelID string, t track.Track) func() {
	var once sync.Once
	return func() {
		once.Do(func() { m.NowPlaying(channelID, t) })
	}
}

// Send sends content to a channel, giving up after the timeout.
func (m *Manager) Send(channelID, content string) error {
	if channelID == "" {
		return errors.New("channel id is empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- m.sender.SendMessage(channelID, content)
	}()

	select {
	case err := <-done:
		if err != nil {
			return errors.Wrapf(err, "failed to send message: channel_id=%s", channelID)
		}
		m.mu.Lock()
		m.sent++
		m.mu.Unlock()
		return nil
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "send timed out: channel_id=%s", channelID)
	}
}

func (m *Manager) sentCount() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent
}

// notify sends and logs failures. Notice failures never affect playback.
func (m *Manager) notify(channelID, content string) {
	if err := m.Send(channelID, content); err != nil {
		zlog.Warn().Msgf("notification failed: channel_id=%s err=%v", channelID, err)
	}
}
