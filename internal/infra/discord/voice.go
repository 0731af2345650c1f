package discord

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	"github.com/jonas747/dca"
	zlog "github.com/rs/zerolog/log"

	"github.com/MassimilianoBaglioni/soundboard-bot/internal/domain/audio"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/domain/track"
)

const streamResolveTimeout = 30 * time.Second

var (
	ErrNotConnected = errors.New("voice connection is not established")
	ErrStopped      = errors.New("stream stopped")
)

// StreamResolver turns a track locator into a URL ffmpeg can read.
type StreamResolver interface {
	StreamURL(ctx context.Context, locator string, search bool) (string, error)
}

// AudioConfig holds dca encoding settings.
type AudioConfig struct {
	Bitrate        int // kbps
	Volume         int // 256 is unity
	BufferedFrames int
}

// Voice is an audio.Transport backed by discordgo voice connections and dca.
type Voice struct {
	session  *discordgo.Session
	resolver StreamResolver
	config   AudioConfig

	mu    sync.RWMutex
	conns map[string]*discordgo.VoiceConnection
}

var _ audio.Transport = (*Voice)(nil)

// NewVoice creates a new voice transport.
func NewVoice(session *discordgo.Session, resolver StreamResolver, cfg AudioConfig) *Voice {
	return &Voice{
		session:  session,
		resolver: resolver,
		config:   cfg,
		conns:    make(map[string]*discordgo.VoiceConnection),
	}
}

// Join connects to a voice channel, or moves an existing connection there.
func (v *Voice) Join(guildID, channelID string) error {
	if vc := v.conn(guildID); vc != nil && vc.ChannelID == channelID && vc.Ready {
		return nil
	}

	vc, err := v.session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return errors.Wrapf(err, "failed to join voice channel: guild_id=%s channel_id=%s", guildID, channelID)
	}

	v.mu.Lock()
	v.conns[guildID] = vc
	v.mu.Unlock()

	zlog.Info().Msgf("joined voice: guild_id=%s channel_id=%s", guildID, channelID)
	return nil
}

// Leave disconnects from the guild's voice channel. No-op when not connected.
func (v *Voice) Leave(guildID string) error {
	v.mu.Lock()
	vc, ok := v.conns[guildID]
	delete(v.conns, guildID)
	v.mu.Unlock()

	if !ok {
		return nil
	}
	if err := vc.Disconnect(); err != nil {
		return errors.Wrapf(err, "failed to disconnect: guild_id=%s", guildID)
	}
	return nil
}

// Connected reports whether the guild has a ready voice connection.
func (v *Voice) Connected(guildID string) bool {
	vc := v.conn(guildID)
	return vc != nil && vc.Ready
}

func (v *Voice) conn(guildID string) *discordgo.VoiceConnection {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.conns[guildID]
}

// Play starts streaming t into the guild's voice connection from offset.
// The stream source is resolved in the background.
func (v *Voice) Play(guildID string, t track.Track, offset time.Duration) audio.Stream {
	ctx, cancel := context.WithCancel(context.Background())
	s := &stream{
		started: make(chan struct{}),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	go v.run(ctx, s, guildID, t, offset)
	return s
}

func (v *Voice) run(ctx context.Context, s *stream, guildID string, t track.Track, offset time.Duration) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("voice stream panicked: %v", r)
		}
		s.finish(err)
	}()

	err = v.stream(ctx, s, guildID, t, offset)
	if errors.Is(err, io.EOF) {
		err = nil
	}
	if err != nil && ctx.Err() != nil {
		err = ErrStopped
	}
}

func (v *Voice) stream(ctx context.Context, s *stream, guildID string, t track.Track, offset time.Duration) error {
	vc := v.conn(guildID)
	if vc == nil {
		return errors.Wrapf(ErrNotConnected, "guild_id=%s", guildID)
	}

	source := t.Locator
	if !t.File {
		resolveCtx, cancel := context.WithTimeout(ctx, streamResolveTimeout)
		url, err := v.resolver.StreamURL(resolveCtx, t.Locator, t.Search)
		cancel()
		if err != nil {
			return errors.Wrapf(err, "failed to resolve stream: title=%s", t.Title)
		}
		source = url
	}

	opts := *dca.StdEncodeOptions
	opts.Bitrate = v.config.Bitrate
	opts.Volume = v.config.Volume
	opts.BufferedFrames = v.config.BufferedFrames
	opts.Application = dca.AudioApplicationAudio
	opts.StartTime = int(offset.Seconds())

	enc, err := dca.EncodeFile(source, &opts)
	if err != nil {
		return errors.Wrapf(err, "failed to start encoder: title=%s", t.Title)
	}
	defer enc.Cleanup()

	if err := vc.Speaking(true); err != nil {
		zlog.Warn().Msgf("failed to set speaking state: guild_id=%s err=%v", guildID, err)
	}
	defer func() {
		if err := vc.Speaking(false); err != nil {
			zlog.Debug().Msgf("failed to clear speaking state: guild_id=%s err=%v", guildID, err)
		}
	}()

	done := make(chan error, 1)
	s.attach(dca.NewStream(enc, vc, done))

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, io.EOF) {
			zlog.Warn().Msgf("voice stream ended with error: guild_id=%s title=%s err=%v stderr=%s", guildID, t.Title, err, enc.FFMPEGMessages())
		}
		return err
	case <-ctx.Done():
		return ErrStopped
	}
}

// stream is the audio.Stream for one dca streaming session.
type stream struct {
	mu      sync.Mutex
	session *dca.StreamingSession
	paused  bool
	err     error

	started chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc

	startOnce sync.Once
	doneOnce  sync.Once
}

func (s *stream) Started() <-chan struct{} { return s.started }
func (s *stream) Done() <-chan struct{}    { return s.done }

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// SetPaused pauses or resumes. A pause requested before the encoder is
// attached is applied on attach.
func (s *stream) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.paused = paused
	if s.session != nil {
		s.session.SetPaused(paused)
	}
}

func (s *stream) Stop() {
	s.cancel()
}

func (s *stream) attach(ss *dca.StreamingSession) {
	s.mu.Lock()
	s.session = ss
	if s.paused {
		ss.SetPaused(true)
	}
	s.mu.Unlock()

	s.startOnce.Do(func() { close(s.started) })
}

func (s *stream) finish(err error) {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		s.cancel()
		close(s.done)
	})
}
