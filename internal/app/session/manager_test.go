package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MassimilianoBaglioni/soundboard-bot/internal/app/resolver"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/app/session/state"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/app/soundboard"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/domain/audio/audiotest"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/domain/track"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/infra/config"
)

const (
	guildID      = "g1"
	userID       = "u1"
	voiceChannel = "v1"
	textChannel  = "t1"
	playlistURL  = "https://www.youtube.com/playlist?list=PL123"
)

type fakeLocator struct {
	channels map[string]string
}

func (l *fakeLocator) UserVoiceChannel(guildID, userID string) (string, bool) {
	ch, ok := l.channels[guildID+"/"+userID]
	return ch, ok
}

type fakeResolver struct {
	mu       sync.Mutex
	failOn   map[string]bool
	blockOn  string
	blocking chan struct{}
	release  chan struct{}
}

func (r *fakeResolver) Resolve(ctx context.Context, raw string) (track.Track, error) {
	r.mu.Lock()
	block := raw == r.blockOn && r.release != nil
	fail := r.failOn[raw]
	r.mu.Unlock()

	if block {
		close(r.blocking)
		<-r.release
	}
	if fail {
		return track.Track{}, errors.Mark(errors.Newf("no metadata for %s", raw), resolver.ErrMetadataUnavailable)
	}
	return track.Track{Title: raw, URL: "https://example.com/" + raw, Locator: raw}, nil
}

type fakeLister struct {
	entries []string
}

func (l *fakeLister) FlatPlaylist(ctx context.Context, url string, maxItems int) ([]string, error) {
	return l.entries, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	hooked []string
	queued []string
	failed []string
}

func (n *fakeNotifier) Hook(channelID string, t track.Track) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hooked = append(n.hooked, t.Title)
	return func() {}
}

func (n *fakeNotifier) Queued(channelID string, t track.Track) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queued = append(n.queued, t.Title)
}

func (n *fakeNotifier) Failed(channelID string, t track.Track) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, t.Title)
}

func (n *fakeNotifier) snapshot() (hooked, queued, failed []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.hooked...), append([]string(nil), n.queued...), append([]string(nil), n.failed...)
}

type fakeSounds struct{}

func (fakeSounds) Track(id string) (track.Track, error) {
	if id != "0" {
		return track.Track{}, errors.Wrapf(soundboard.ErrUnknownSound, "id=%s", id)
	}
	return track.Track{Title: "airhorn", Locator: "/sounds/airhorn.mp3", File: true}, nil
}

type harness struct {
	manager   *Manager
	transport *audiotest.Transport
	resolver  *fakeResolver
	lister    *fakeLister
	notifier  *fakeNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		transport: audiotest.NewTransport(),
		resolver:  &fakeResolver{failOn: map[string]bool{}},
		lister:    &fakeLister{},
		notifier:  &fakeNotifier{},
	}
	cfg := config.Default()

	h.manager = NewManager(cfg, Dependencies{
		Voice:    h.transport,
		Locator:  &fakeLocator{channels: map[string]string{guildID + "/" + userID: voiceChannel}},
		Resolver: h.resolver,
		Lister:   h.lister,
		Notifier: h.notifier,
		Sounds:   fakeSounds{},
	})
	t.Cleanup(h.manager.Close)
	return h
}

func (h *harness) play(t *testing.T, query string) *PlayResult {
	t.Helper()
	res, err := h.manager.Play(context.Background(), PlayRequest{
		GuildID:   guildID,
		UserID:    userID,
		ChannelID: textChannel,
		Query:     query,
		Requester: track.Requester{ID: userID, Name: "alice"},
	})
	require.NoError(t, err)
	return res
}

func waitFinished(t *testing.T, exp *state.Expansion) {
	t.Helper()
	select {
	case <-exp.Finished():
	case <-time.After(2 * time.Second):
		t.Fatal("expansion did not finish")
	}
}

func TestManager_PlayRequiresVoice(t *testing.T) {
	h := newHarness(t)

	_, err := h.manager.Play(context.Background(), PlayRequest{GuildID: guildID, UserID: "stranger", Query: "song"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotInVoice))
	assert.Equal(t, 0, h.transport.Joins())
	assert.Empty(t, h.manager.List(guildID))
}

func TestManager_PlayJoinFailure(t *testing.T) {
	h := newHarness(t)
	h.transport.JoinErr = errors.New("voice handshake timed out")

	_, err := h.manager.Play(context.Background(), PlayRequest{GuildID: guildID, UserID: userID, Query: "song"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrVoiceJoinFailed))
}

func TestManager_PlayJoinsAndArmsIdleMonitor(t *testing.T) {
	h := newHarness(t)

	res := h.play(t, "song")

	assert.Equal(t, voiceChannel, h.transport.Channel(guildID))
	assert.True(t, h.manager.idle.Running(guildID))
	require.NotNil(t, res.Track)
	assert.Equal(t, 0, res.Position)
	assert.Nil(t, res.Expansion)
}

func TestManager_FIFOOrder(t *testing.T) {
	h := newHarness(t)

	for _, q := range []string{"A", "B", "C"} {
		h.play(t, q)
	}

	assert.Equal(t, []string{"A", "B", "C"}, h.manager.List(guildID))
	assert.Equal(t, "A", h.transport.Last().Track.Title)

	hooked, queued, _ := h.notifier.snapshot()
	assert.Equal(t, []string{"A", "B", "C"}, hooked)
	// Only tracks added behind others get an added-to-queue notice.
	assert.Equal(t, []string{"B", "C"}, queued)
}

func TestManager_SkipThenClear(t *testing.T) {
	h := newHarness(t)

	h.play(t, "A")
	res := h.play(t, "B")
	assert.Equal(t, 1, res.Position)
	assert.Equal(t, []string{"A", "B"}, h.manager.List(guildID))

	require.NoError(t, h.manager.Skip(guildID))
	assert.Equal(t, []string{"B"}, h.manager.List(guildID))
	assert.Equal(t, "B", h.transport.Last().Track.Title)

	h.manager.Clear(guildID)
	assert.Empty(t, h.manager.List(guildID))
	assert.True(t, h.transport.Last().Stopped())
}

func TestManager_StopIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.play(t, "A")

	h.manager.Stop(guildID)
	phase := h.manager.GetStatus(guildID).Phase

	assert.NotPanics(t, func() { h.manager.Stop(guildID) })
	assert.Empty(t, h.manager.List(guildID))
	assert.Equal(t, phase, h.manager.GetStatus(guildID).Phase)
	assert.Equal(t, state.PhaseIdle, phase)
}

func TestManager_OperationsWithoutSessionAreNoOps(t *testing.T) {
	h := newHarness(t)

	assert.NotPanics(t, func() { h.manager.Stop("unknown") })
	assert.NoError(t, h.manager.Skip("unknown"))
	assert.NoError(t, h.manager.Pause("unknown"))
	assert.NoError(t, h.manager.Resume("unknown"))
	assert.NoError(t, h.manager.Seek("unknown", time.Second))
	assert.Nil(t, h.manager.List("unknown"))
	assert.NotPanics(t, func() { h.manager.Leave("unknown") })
}

func TestManager_PauseResumeSeek(t *testing.T) {
	h := newHarness(t)
	h.play(t, "A")

	require.NoError(t, h.manager.Pause(guildID))
	assert.True(t, h.transport.Last().Paused())

	require.NoError(t, h.manager.Seek(guildID, 30*time.Second))
	seeked := h.transport.Last()
	assert.Equal(t, 30*time.Second, seeked.Offset)
	assert.True(t, seeked.Paused())

	require.NoError(t, h.manager.Resume(guildID))
	assert.False(t, seeked.Paused())
}

func TestManager_ResolveFailureEnqueuesNothing(t *testing.T) {
	h := newHarness(t)
	h.resolver.failOn["bad"] = true

	_, err := h.manager.Play(context.Background(), PlayRequest{GuildID: guildID, UserID: userID, Query: "bad"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, resolver.ErrMetadataUnavailable))
	assert.Empty(t, h.manager.List(guildID))
}

func TestManager_PlaylistSkipsFailedItems(t *testing.T) {
	h := newHarness(t)
	h.lister.entries = []string{"p1", "p2", "p3", "p4"}
	h.resolver.failOn["p2"] = true

	res := h.play(t, playlistURL)
	require.NotNil(t, res.Expansion)
	waitFinished(t, res.Expansion)

	assert.Equal(t, []string{"p1", "p3", "p4"}, h.manager.List(guildID))
	assert.Equal(t, state.PhasePlaying, h.manager.GetStatus(guildID).Phase)
}

func TestManager_StopDuringPlaylistExpansion(t *testing.T) {
	h := newHarness(t)
	h.lister.entries = []string{"item-1", "item-2", "item-3", "item-4", "item-5"}
	h.resolver.blockOn = "item-3"
	h.resolver.blocking = make(chan struct{})
	h.resolver.release = make(chan struct{})

	res := h.play(t, playlistURL)
	require.NotNil(t, res.Expansion)

	<-h.resolver.blocking
	assert.Equal(t, state.PhaseExpanding, h.manager.GetStatus(guildID).Phase)

	h.manager.Stop(guildID)
	close(h.resolver.release)
	waitFinished(t, res.Expansion)

	hooked, _, _ := h.notifier.snapshot()
	assert.GreaterOrEqual(t, len(hooked), 2)
	assert.LessOrEqual(t, len(hooked), 3)
	assert.Equal(t, h.lister.entries[:len(hooked)], hooked)

	assert.Empty(t, h.manager.List(guildID))
	assert.True(t, res.Expansion.Cancelled())
	assert.Equal(t, state.PhaseIdle, h.manager.GetStatus(guildID).Phase)
}

func TestManager_SecondPlaylistIsRejected(t *testing.T) {
	h := newHarness(t)
	h.lister.entries = []string{"item-1", "item-2"}
	h.resolver.blockOn = "item-1"
	h.resolver.blocking = make(chan struct{})
	h.resolver.release = make(chan struct{})

	first := h.play(t, playlistURL)
	<-h.resolver.blocking

	_, err := h.manager.Play(context.Background(), PlayRequest{GuildID: guildID, UserID: userID, Query: playlistURL})
	assert.True(t, errors.Is(err, state.ErrExpansionInProgress))

	close(h.resolver.release)
	waitFinished(t, first.Expansion)
	assert.Equal(t, []string{"item-1", "item-2"}, h.manager.List(guildID))
}

func TestManager_Soundboard(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.manager.Soundboard(context.Background(), guildID, userID, textChannel, "0"))
	assert.Equal(t, []string{"airhorn"}, h.manager.List(guildID))
	assert.True(t, h.transport.Last().Track.File)

	err := h.manager.Soundboard(context.Background(), guildID, userID, textChannel, "42")
	assert.True(t, errors.Is(err, soundboard.ErrUnknownSound))
}

func TestManager_SoundboardInterruptsQueue(t *testing.T) {
	h := newHarness(t)
	for _, q := range []string{"A", "B", "C"} {
		h.play(t, q)
	}
	interrupted := h.transport.Last()

	require.NoError(t, h.manager.Soundboard(context.Background(), guildID, userID, textChannel, "0"))

	assert.Equal(t, []string{"airhorn", "A", "B", "C"}, h.manager.List(guildID))
	assert.True(t, interrupted.Stopped())
	clip := h.transport.Last()
	assert.Equal(t, "airhorn", clip.Track.Title)

	clip.Finish(nil)

	require.Eventually(t, func() bool {
		return h.transport.Last().Track.Title == "A"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"A", "B", "C"}, h.manager.List(guildID))

	// Clips are never announced.
	hooked, _, _ := h.notifier.snapshot()
	assert.Equal(t, []string{"A", "B", "C"}, hooked)
}

func TestManager_FailedTrackIsAnnounced(t *testing.T) {
	h := newHarness(t)
	h.play(t, "A")
	h.play(t, "B")

	h.transport.Last().Finish(errors.New("ffmpeg exited"))

	assert.Eventually(t, func() bool {
		_, _, failed := h.notifier.snapshot()
		return len(failed) == 1 && failed[0] == "A"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"B"}, h.manager.List(guildID))
}

func TestManager_CrossGuildIndependence(t *testing.T) {
	h := newHarness(t)
	locator := h.manager.locator.(*fakeLocator)
	for i := range 5 {
		locator.channels[fmt.Sprintf("g%d/%s", i+10, userID)] = voiceChannel
	}

	var wg sync.WaitGroup
	for i := range 5 {
		wg.Add(1)
		go func(g string) {
			defer wg.Done()
			for j := range 3 {
				_, err := h.manager.Play(context.Background(), PlayRequest{GuildID: g, UserID: userID, Query: fmt.Sprintf("%s-%d", g, j)})
				assert.NoError(t, err)
			}
		}(fmt.Sprintf("g%d", i+10))
	}
	wg.Wait()

	for i := range 5 {
		g := fmt.Sprintf("g%d", i+10)
		titles := h.manager.List(g)
		require.Len(t, titles, 3)
		for _, title := range titles {
			assert.True(t, strings.HasPrefix(title, g+"-"))
		}
	}
}
