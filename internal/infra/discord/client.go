// Package discord provides the discordgo client and the dca voice transport.
package discord

import (
	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Intents required by the bot.
const Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates | discordgo.IntentsGuildMessages

// Client wraps a discordgo session for chat operations.
type Client struct {
	session *discordgo.Session
}

// New creates a new client. The session is not opened.
func New(token string) (*Client, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create discord session")
	}
	s.Identify.Intents = Intents
	s.StateEnabled = true

	return &Client{session: s}, nil
}

// Session returns the underlying discordgo session.
func (c *Client) Session() *discordgo.Session {
	return c.session
}

// Open connects to the gateway.
func (c *Client) Open() error {
	if err := c.session.Open(); err != nil {
		return errors.Wrap(err, "failed to open discord session")
	}
	return nil
}

// Close disconnects from the gateway.
func (c *Client) Close() error {
	return c.session.Close()
}

// SendMessage posts a plain message to a text channel.
func (c *Client) SendMessage(channelID, content string) error {
	_, err := c.session.ChannelMessageSend(channelID, content)
	if err != nil {
		return errors.Wrapf(err, "failed to send message: channel_id=%s", channelID)
	}
	return nil
}

// SendSoundboard posts a message carrying button rows.
func (c *Client) SendSoundboard(channelID, content string, rows []discordgo.MessageComponent) error {
	_, err := c.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:    content,
		Components: rows,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to send soundboard: channel_id=%s", channelID)
	}
	return nil
}

// DeleteRecent deletes the bot's own messages among the last limit messages
// of a channel. Returns the number deleted.
func (c *Client) DeleteRecent(channelID string, limit int) (int, error) {
	msgs, err := c.session.ChannelMessages(channelID, limit, "", "", "")
	if err != nil {
		return 0, errors.Wrapf(err, "failed to list messages: channel_id=%s", channelID)
	}

	self := c.selfID()
	deleted := 0
	for _, msg := range msgs {
		if msg.Author == nil || msg.Author.ID != self {
			continue
		}
		if err := c.session.ChannelMessageDelete(channelID, msg.ID); err != nil {
			zlog.Warn().Msgf("failed to delete message: channel_id=%s message_id=%s err=%v", channelID, msg.ID, err)
			continue
		}
		deleted++
	}
	return deleted, nil
}

// UserVoiceChannel returns the voice channel the user is connected to.
func (c *Client) UserVoiceChannel(guildID, userID string) (string, bool) {
	vs, err := c.session.State.VoiceState(guildID, userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		return "", false
	}
	return vs.ChannelID, true
}

func (c *Client) selfID() string {
	if c.session.State == nil || c.session.State.User == nil {
		return ""
	}
	return c.session.State.User.ID
}
