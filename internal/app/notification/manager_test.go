package notification

import (
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MassimilianoBaglioni/soundboard-bot/internal/domain/track"
)

type message struct {
	channelID string
	content   string
}

type fakeSender struct {
	mu       sync.Mutex
	messages []message
	err      error
	block    chan struct{}
}

func (s *fakeSender) SendMessage(channelID, content string) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, message{channelID: channelID, content: content})
	return nil
}

func (s *fakeSender) all() []message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]message(nil), s.messages...)
}

func TestTexts(t *testing.T) {
	linked := track.Track{Title: "Song", URL: "https://www.youtube.com/watch?v=x"}
	file := track.Track{Title: "airhorn", Locator: "/sounds/airhorn.mp3", File: true}

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{name: "now playing with link", got: NowPlayingText(linked), expected: "**Now playing:** [Song](https://www.youtube.com/watch?v=x)"},
		{name: "now playing without link", got: NowPlayingText(file), expected: "**Now playing:** airhorn"},
		{name: "queued", got: QueuedText(linked), expected: "**Added to the queue:** [Song](https://www.youtube.com/watch?v=x)"},
		{name: "failed", got: FailedText(file), expected: "Could not play airhorn, skipping."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.got)
		})
	}
}

func TestManager_HookFiresOnce(t *testing.T) {
	sender := &fakeSender{}
	m := NewManager(sender)

	hook := m.Hook("c1", track.Track{Title: "Song"})
	hook()
	hook()
	hook()

	msgs := sender.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, message{channelID: "c1", content: "**Now playing:** Song"}, msgs[0])
	assert.Equal(t, uint64(1), m.sentCount())
}

func TestManager_SendErrors(t *testing.T) {
	t.Run("sender error is wrapped", func(t *testing.T) {
		cause := errors.New("missing access")
		m := NewManager(&fakeSender{err: cause})

		err := m.Send("c1", "hello")
		require.Error(t, err)
		assert.True(t, errors.Is(err, cause))
	})

	t.Run("empty channel", func(t *testing.T) {
		m := NewManager(&fakeSender{})
		assert.Error(t, m.Send("", "hello"))
	})

	t.Run("slow sender times out", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)

		m := NewManager(&fakeSender{block: release})
		m.setTimeout(20 * time.Millisecond)

		start := time.Now()
		err := m.Send("c1", "hello")
		require.Error(t, err)
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestManager_FailuresAreSwallowed(t *testing.T) {
	m := NewManager(&fakeSender{err: errors.New("boom")})

	assert.NotPanics(t, func() {
		m.NowPlaying("c1", track.Track{Title: "Song"})
		m.Queued("c1", track.Track{Title: "Song"})
	})
	assert.Equal(t, uint64(0), m.sentCount())
}
