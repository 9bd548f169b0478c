package card

import (
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"

	"github.com/hykim/melobot/internal/features/shared"
)

// Setup handles the card setup command: find or create the card channel,
// post the card message and remember where it lives.
func (m *Manager) Setup(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		shared.RespondEphemeral(s, i, "This command only works inside a server.")
		return
	}

	if !hasManageChannelsPermission(i) {
		shared.RespondEphemeral(s, i, "You need the Manage Channels permission to set up the player.")
		return
	}

	categoryID, channelName := parseSetupOptions(i)
	if channelName == "" {
		channelName = DefaultCardChannelName
	}

	channelID := m.findExistingChannel(s, i.GuildID, categoryID, channelName)
	if channelID == "" {
		channel, err := s.GuildChannelCreateComplex(i.GuildID, discordgo.GuildChannelCreateData{
			Name:     channelName,
			Type:     discordgo.ChannelTypeGuildText,
			ParentID: categoryID,
		})
		if err != nil {
			log.Printf("failed to create card channel: %v", err)
			shared.RespondEphemeral(s, i, "Could not create the player channel.")
			return
		}
		channelID = channel.ID
	}

	if err := m.deletePreviousCard(s, i.GuildID); err != nil {
		log.Printf("failed to delete previous card message: %v", err)
	}

	player := m.svc.Manager().Get(i.GuildID)
	msg, err := s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Components: BuildCardComponents(player.Snapshot(), player.HasVoiceConnection()),
		Flags:      discordgo.MessageFlagsIsComponentsV2,
	})
	if err != nil {
		log.Printf("failed to send card message: %v", err)
		shared.RespondEphemeral(s, i, "Could not post the player card.")
		return
	}

	m.setEntry(i.GuildID, Entry{ChannelID: channelID, MessageID: msg.ID})

	if err := m.repo.UpsertPlayerCard(i.GuildID, channelID, msg.ID); err != nil {
		log.Printf("failed to save player card entry: %v", err)
	}

	shared.RespondEphemeral(s, i, fmt.Sprintf("Player card is ready in <#%s>.", channelID))
}

func (m *Manager) findExistingChannel(s *discordgo.Session, guildID, categoryID, channelName string) string {
	if categoryID == "" && channelName == DefaultCardChannelName {
		if entry, ok := m.entry(guildID); ok && entry.ChannelID != "" {
			if _, err := s.Channel(entry.ChannelID); err == nil {
				return entry.ChannelID
			}
		}
	}

	channels, err := s.GuildChannels(guildID)
	if err != nil {
		return ""
	}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildText && ch.Name == channelName {
			if categoryID == "" || ch.ParentID == categoryID {
				return ch.ID
			}
		}
	}
	return ""
}

func (m *Manager) deletePreviousCard(s *discordgo.Session, guildID string) error {
	entry, ok := m.entry(guildID)
	if !ok || entry.ChannelID == "" || entry.MessageID == "" {
		return nil
	}
	return s.ChannelMessageDelete(entry.ChannelID, entry.MessageID)
}

func parseSetupOptions(i *discordgo.InteractionCreate) (string, string) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return "", ""
	}

	var categoryID, channelName string
	for _, opt := range i.ApplicationCommandData().Options {
		switch opt.Name {
		case "category":
			categoryID = opt.StringValue()
		case "channel_name":
			channelName = opt.StringValue()
		}
	}
	return categoryID, channelName
}

func hasManageChannelsPermission(i *discordgo.InteractionCreate) bool {
	if i.Member == nil {
		return false
	}
	return i.Member.Permissions&discordgo.PermissionManageChannels != 0
}
