package discord

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"

	"github.com/MassimilianoBaglioni/soundboard-bot/internal/app/playback"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/app/resolver"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/app/session"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/app/session/state"
	"github.com/MassimilianoBaglioni/soundboard-bot/internal/app/soundboard"
)

// MaxMessageLen is Discord's message length limit.
const MaxMessageLen = 2000

const (
	buttonsPerRow  = 5
	buttonPrefix   = "sb:"
	ButtonStop     = buttonPrefix + "stop"
	ButtonQuit     = buttonPrefix + "quit"
	soundboardHead = "Soundboard"
)

// FormatQueue renders queue titles as numbered lines, split into messages
// of at most maxLen characters. The first title is marked as now playing.
func FormatQueue(titles []string, maxLen int) []string {
	if len(titles) == 0 {
		return []string{"No songs queued."}
	}

	var (
		messages []string
		current  strings.Builder
	)
	for i, title := range titles {
		var line string
		if i == 0 {
			line = fmt.Sprintf("`%2d.`*__ Now playing__:* **%s**\n", i, title)
		} else {
			line = fmt.Sprintf("`%2d.`**%s**\n", i, title)
		}
		if len(line) > maxLen {
			line = truncate(line, maxLen-1) + "\n"
		}

		if current.Len()+len(line) > maxLen {
			messages = append(messages, current.String())
			current.Reset()
		}
		current.WriteString(line)
	}
	messages = append(messages, current.String())
	return messages
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// StatusLine renders a one-line session status shown above the queue.
// Returns an empty string when there is nothing worth reporting.
func StatusLine(st *session.Status) string {
	if st == nil {
		return ""
	}

	var parts []string
	if st.PlaybackState == playback.StatePaused {
		parts = append(parts, "Paused at "+formatPosition(st.Position)+".")
	}
	if st.Phase == state.PhaseExpanding {
		parts = append(parts, "Adding playlist tracks...")
	}
	if len(parts) == 0 {
		return ""
	}
	return "_" + strings.Join(parts, " ") + "_"
}

func formatPosition(d time.Duration) string {
	secs := int(d.Round(time.Second).Seconds())
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// SoundboardMessage is one message of the soundboard UI.
type SoundboardMessage struct {
	Content string
	Rows    []discordgo.MessageComponent
}

// SoundboardMessages lays out one message per page with up to five buttons
// per row, followed by a message with the STOP and QUIT buttons.
func SoundboardMessages(pages [][]soundboard.Sound) []SoundboardMessage {
	messages := make([]SoundboardMessage, 0, len(pages)+1)

	for i, page := range pages {
		msg := SoundboardMessage{}
		if i == 0 {
			msg.Content = soundboardHead
		}

		for start := 0; start < len(page); start += buttonsPerRow {
			end := min(start+buttonsPerRow, len(page))
			row := discordgo.ActionsRow{}
			for _, s := range page[start:end] {
				row.Components = append(row.Components, discordgo.Button{
					Label:    s.Label,
					Style:    discordgo.SecondaryButton,
					CustomID: buttonPrefix + s.ID,
				})
			}
			msg.Rows = append(msg.Rows, row)
		}
		messages = append(messages, msg)
	}

	controls := SoundboardMessage{
		Rows: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{Label: "STOP", Style: discordgo.DangerButton, CustomID: ButtonStop},
					discordgo.Button{Label: "QUIT", Style: discordgo.DangerButton, CustomID: ButtonQuit},
				},
			},
		},
	}
	if len(messages) == 0 {
		controls.Content = soundboardHead
	}
	return append(messages, controls)
}

// soundID extracts the sound ID from a button custom ID.
func soundID(customID string) (string, bool) {
	if !strings.HasPrefix(customID, buttonPrefix) {
		return "", false
	}
	return strings.TrimPrefix(customID, buttonPrefix), true
}

// ErrorReply maps an error to a short user-facing reply.
func ErrorReply(err error) string {
	switch {
	case errors.Is(err, ErrNotInGuild):
		return "This command only works in a server."
	case errors.Is(err, ErrInvalidOptions):
		return "Invalid command options."
	case errors.Is(err, session.ErrNotInVoice):
		return "Join a voice channel first."
	case errors.Is(err, session.ErrVoiceJoinFailed):
		return "Could not join your voice channel."
	case errors.Is(err, resolver.ErrMetadataUnavailable):
		return "Could not find that track."
	case errors.Is(err, state.ErrExpansionInProgress):
		return "A playlist is still being added. Use /clear to cancel it."
	case errors.Is(err, soundboard.ErrUnknownSound):
		return "Unknown sound."
	case errors.Is(err, playback.ErrNoTrack):
		return "Nothing is playing."
	case errors.Is(err, playback.ErrNotPlaying):
		return "Track is not playing."
	case errors.Is(err, playback.ErrNotPaused):
		return "Track is not paused."
	default:
		return "Something went wrong."
	}
}
