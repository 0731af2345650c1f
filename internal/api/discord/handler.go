package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/MassimilianoBaglioni/soundboard-bot/internal/app/session"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/app/soundboard"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/domain/playlist"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/domain/track"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/infra/config"
)

const handlerTimeout = 2 * time.Minute

var ErrUnknownCommand = errors.New("unknown command")

// Sessions is the session manager surface used by the handlers.
type Sessions interface {
	Join(ctx context.Context, guildID, userID string) error
	Play(ctx context.Context, req session.PlayRequest) (*session.PlayResult, error)
	Soundboard(ctx context.Context, guildID, userID, channelID, soundID string) error
	Skip(guildID string) error
	Pause(guildID string) error
	Resume(guildID string) error
	Seek(guildID string, offset time.Duration) error
	Clear(guildID string)
	Stop(guildID string)
	Leave(guildID string)
	List(guildID string) []string
	GetStatus(guildID string) *session.Status
}

// Chat is the chat surface used by the soundboard command.
type Chat interface {
	DeleteRecent(channelID string, limit int) (int, error)
	SendSoundboard(channelID, content string, rows []discordgo.MessageComponent) error
}

// Handler dispatches Discord interactions to the session manager.
type Handler struct {
	sessions Sessions
	chat     Chat
	sounds   *soundboard.Catalog
	config   *config.Config

	commands HandlerFunc
	buttons  HandlerFunc
}

// NewHandler creates a new Handler.
func NewHandler(sessions Sessions, chat Chat, sounds *soundboard.Catalog, cfg *config.Config) *Handler {
	h := &Handler{
		sessions: sessions,
		chat:     chat,
		sounds:   sounds,
		config:   cfg,
	}

	interceptors := []Interceptor{
		NewRecoverInterceptor(),
		NewLoggingInterceptor(),
		NewGuildInterceptor(),
		NewTimeoutInterceptor(handlerTimeout),
	}
	h.commands = Chain(h.HandleCommand, interceptors...)
	h.buttons = Chain(h.HandleButton, interceptors...)
	return h
}

// OnInteraction is the discordgo InteractionCreate handler.
func (h *Handler) OnInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		h.onCommand(s, i)
	case discordgo.InteractionMessageComponent:
		h.onButton(s, i)
	}
}

func (h *Handler) onCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	inv := newInvocation(i, data.Name)
	for _, opt := range data.Options {
		inv.Options[opt.Name] = opt.Value
	}

	resp := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredChannelMessageWithSource}
	ephemeral := data.Name != CmdList
	if ephemeral {
		resp.Data = &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral}
	}
	if err := s.InteractionRespond(i.Interaction, resp); err != nil {
		zlog.Error().Msgf("failed to defer interaction: name=%s err=%v", data.Name, err)
		return
	}

	replies, err := h.commands(context.Background(), inv)
	if err != nil {
		replies = []string{ErrorReply(err)}
	}
	if len(replies) == 0 {
		replies = []string{"Done"}
	}

	content := replies[0]
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content}); err != nil {
		zlog.Error().Msgf("failed to edit interaction response: name=%s err=%v", data.Name, err)
		return
	}
	for _, reply := range replies[1:] {
		params := &discordgo.WebhookParams{Content: reply}
		if ephemeral {
			params.Flags = discordgo.MessageFlagsEphemeral
		}
		if _, err := s.FollowupMessageCreate(i.Interaction, true, params); err != nil {
			zlog.Error().Msgf("failed to send followup: name=%s err=%v", data.Name, err)
			return
		}
	}
}

func (h *Handler) onButton(s *discordgo.Session, i *discordgo.InteractionCreate) {
	inv := newInvocation(i, i.MessageComponentData().CustomID)

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}); err != nil {
		zlog.Error().Msgf("failed to acknowledge button: custom_id=%s err=%v", inv.Name, err)
	}

	replies, err := h.buttons(context.Background(), inv)
	if err != nil {
		replies = []string{ErrorReply(err)}
	}
	for _, reply := range replies {
		if _, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
			Content: reply,
			Flags:   discordgo.MessageFlagsEphemeral,
		}); err != nil {
			zlog.Error().Msgf("failed to send followup: custom_id=%s err=%v", inv.Name, err)
		}
	}
}

func newInvocation(i *discordgo.InteractionCreate, name string) Invocation {
	inv := Invocation{
		Name:      name,
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		Options:   make(map[string]any),
	}
	if i.Member != nil && i.Member.User != nil {
		inv.UserID = i.Member.User.ID
		inv.UserName = i.Member.User.Username
	} else if i.User != nil {
		inv.UserID = i.User.ID
		inv.UserName = i.User.Username
	}
	return inv
}

// HandleCommand runs a slash command and returns the replies.
func (h *Handler) HandleCommand(ctx context.Context, inv Invocation) ([]string, error) {
	switch inv.Name {
	case CmdPlay:
		return h.play(ctx, inv)
	case CmdSkip:
		return reply("Track skipped.", h.sessions.Skip(inv.GuildID))
	case CmdPause:
		return reply("Track paused.", h.sessions.Pause(inv.GuildID))
	case CmdResume:
		return reply("Track resumed.", h.sessions.Resume(inv.GuildID))
	case CmdClear:
		h.sessions.Clear(inv.GuildID)
		return []string{"Cleared all queued songs."}, nil
	case CmdList:
		return h.list(inv.GuildID), nil
	case CmdSeek:
		return h.seek(inv)
	case CmdSoundboard:
		return h.soundboard(ctx, inv)
	case CmdLeave:
		h.sessions.Leave(inv.GuildID)
		return []string{"Left the voice channel."}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownCommand, "name=%s", inv.Name)
	}
}

// HandleButton runs a soundboard button press.
func (h *Handler) HandleButton(ctx context.Context, inv Invocation) ([]string, error) {
	switch inv.Name {
	case ButtonStop:
		h.sessions.Stop(inv.GuildID)
		return nil, nil
	case ButtonQuit:
		h.sessions.Leave(inv.GuildID)
		return nil, nil
	}

	id, ok := soundID(inv.Name)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownCommand, "custom_id=%s", inv.Name)
	}
	if err := h.sessions.Soundboard(ctx, inv.GuildID, inv.UserID, inv.ChannelID, id); err != nil {
		return nil, err
	}
	return nil, nil
}

func (h *Handler) play(ctx context.Context, inv Invocation) ([]string, error) {
	var opts PlayOptions
	if err := decodeOptions(inv.Options, &opts); err != nil {
		return nil, err
	}

	res, err := h.sessions.Play(ctx, session.PlayRequest{
		GuildID:   inv.GuildID,
		UserID:    inv.UserID,
		ChannelID: inv.ChannelID,
		Query:     opts.Query,
		Requester: track.Requester{ID: inv.UserID, Name: inv.UserName},
	})
	if err != nil {
		return nil, err
	}

	switch {
	case res.Expansion != nil:
		source := "playlist"
		if res.Playlist == playlist.KindCatalogAlbum {
			source = "album"
		}
		return []string{fmt.Sprintf("Adding tracks from the %s.", source)}, nil
	case res.Track != nil && res.Position == 0:
		return []string{fmt.Sprintf("Playing %s", res.Track.Markdown())}, nil
	case res.Track != nil:
		return []string{fmt.Sprintf("Queued %s at position %d.", res.Track.Markdown(), res.Position)}, nil
	default:
		return nil, nil
	}
}

func (h *Handler) seek(inv Invocation) ([]string, error) {
	var opts SeekOptions
	if err := decodeOptions(inv.Options, &opts); err != nil {
		return nil, err
	}

	offset := time.Duration(opts.Seconds) * time.Second
	return reply(fmt.Sprintf("Seeked to %v.", offset), h.sessions.Seek(inv.GuildID, offset))
}

func (h *Handler) soundboard(ctx context.Context, inv Invocation) ([]string, error) {
	if n, err := h.chat.DeleteRecent(inv.ChannelID, h.config.Discord.DeleteHistory); err != nil {
		zlog.Warn().Msgf("failed to delete old messages: channel_id=%s err=%v", inv.ChannelID, err)
	} else if n > 0 {
		zlog.Debug().Msgf("old messages deleted: channel_id=%s count=%d", inv.ChannelID, n)
	}

	if err := h.sessions.Join(ctx, inv.GuildID, inv.UserID); err != nil {
		return nil, err
	}

	for _, msg := range SoundboardMessages(h.sounds.Pages(h.config.Soundboard.PerMessage)) {
		if err := h.chat.SendSoundboard(inv.ChannelID, msg.Content, msg.Rows); err != nil {
			return nil, err
		}
	}
	return []string{"Done"}, nil
}

func reply(ok string, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	return []string{ok}, nil
}

// list renders the queue, preceded by a status line when paused or
// expanding a playlist.
func (h *Handler) list(guildID string) []string {
	messages := FormatQueue(h.sessions.List(guildID), MaxMessageLen)
	if line := StatusLine(h.sessions.GetStatus(guildID)); line != "" {
		messages = append([]string{line}, messages...)
	}
	return messages
}
