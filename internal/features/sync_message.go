package features

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// handleSyncMessage lets the bot owner re-register slash commands for one
// guild with a plain "!sync" message.
func (r *Registry) handleSyncMessage(s *discordgo.Session, m *discordgo.MessageCreate) bool {
	if s == nil || m == nil || m.Author == nil {
		return false
	}
	if m.Author.Bot {
		return false
	}
	if m.GuildID == "" {
		return false
	}

	if strings.TrimSpace(m.Content) != "!sync" {
		return false
	}

	if r.ownerID == "" || m.Author.ID != r.ownerID {
		_, _ = s.ChannelMessageSend(m.ChannelID, "Only the bot owner can use this command.")
		return true
	}

	appID := ""
	if s.State != nil && s.State.User != nil {
		appID = s.State.User.ID
	}
	if appID == "" {
		_, _ = s.ChannelMessageSend(m.ChannelID, "Command sync failed: could not determine the application ID.")
		return true
	}

	if _, err := RegisterCommands(s, appID, m.GuildID); err != nil {
		_, _ = s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("Command sync failed: %v", err))
		return true
	}

	_, _ = s.ChannelMessageSend(m.ChannelID, "Slash commands synced to this server.")
	return true
}
