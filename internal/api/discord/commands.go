// Package discord provides the slash command and button handlers.
package discord

import (
	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Command names.
const (
	CmdPlay       = "play"
	CmdSkip       = "skip"
	CmdPause      = "pause"
	CmdResume     = "resume"
	CmdClear      = "clear"
	CmdList       = "list"
	CmdSeek       = "seek"
	CmdSoundboard = "soundboard"
	CmdLeave      = "leave"
)

// Option names.
const (
	OptQuery   = "query"
	OptSeconds = "seconds"
)

var minSeconds = 0.0

// Commands returns the slash command definitions.
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        CmdPlay,
			Description: "Play a song or playlist, provide URL or title",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        OptQuery,
					Description: "URL or title",
					Required:    true,
				},
			},
		},
		{Name: CmdSkip, Description: "Skips the current playing track"},
		{Name: CmdPause, Description: "Pauses the current playing track"},
		{Name: CmdResume, Description: "Resumes the current paused track"},
		{Name: CmdClear, Description: "Skips the current track and clears the queue"},
		{Name: CmdList, Description: "Lists all the queued songs"},
		{
			Name:        CmdSeek,
			Description: "Seeks to a position in the current track",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        OptSeconds,
					Description: "Absolute position in seconds",
					Required:    true,
					MinValue:    &minSeconds,
				},
			},
		},
		{Name: CmdSoundboard, Description: "Sends the soundboard"},
		{Name: CmdLeave, Description: "Stops playback and leaves the voice channel"},
	}
}

// RegisterCommands overwrites the application's commands. An empty guildID
// registers them globally.
func RegisterCommands(s *discordgo.Session, appID, guildID string) error {
	cmds, err := s.ApplicationCommandBulkOverwrite(appID, guildID, Commands())
	if err != nil {
		return errors.Wrapf(err, "failed to register commands: guild_id=%s", guildID)
	}
	zlog.Info().Msgf("commands registered: count=%d guild_id=%s", len(cmds), guildID)
	return nil
}
