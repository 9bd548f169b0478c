package shared

import (
	"errors"

	"github.com/bwmarrin/discordgo"

	"github.com/hykim/melobot/internal/music"
)

// InteractionRequest adapts a deferred slash-command or component
// interaction into a playback request. Replies go out as ephemeral
// follow-ups.
type InteractionRequest struct {
	Session     *discordgo.Session
	Interaction *discordgo.InteractionCreate
}

var _ music.PlaybackRequest = (*InteractionRequest)(nil)

func NewInteractionRequest(s *discordgo.Session, i *discordgo.InteractionCreate) *InteractionRequest {
	return &InteractionRequest{Session: s, Interaction: i}
}

func (r *InteractionRequest) ActorID() string {
	return GetInteractionUserID(r.Interaction)
}

func (r *InteractionRequest) DisplayName() string {
	return GetInteractionDisplayName(r.Interaction)
}

func (r *InteractionRequest) GuildID() string {
	if r.Interaction == nil {
		return ""
	}
	return r.Interaction.GuildID
}

func (r *InteractionRequest) VoiceChannelID() string {
	guildID := r.GuildID()
	userID := r.ActorID()
	if guildID == "" || userID == "" {
		return ""
	}
	channelID, err := music.FindUserVoiceChannel(r.Session, guildID, userID)
	if err != nil {
		return ""
	}
	return channelID
}

func (r *InteractionRequest) Reply(content string) {
	FollowupEphemeral(r.Session, r.Interaction, content)
}

// MessageRequest adapts a chat message into a playback request. Replies go
// out as channel replies to the originating message.
type MessageRequest struct {
	Session *discordgo.Session
	Message *discordgo.MessageCreate
}

var _ music.PlaybackRequest = (*MessageRequest)(nil)

func NewMessageRequest(s *discordgo.Session, m *discordgo.MessageCreate) *MessageRequest {
	return &MessageRequest{Session: s, Message: m}
}

func (r *MessageRequest) ActorID() string {
	if r.Message == nil || r.Message.Author == nil {
		return ""
	}
	return r.Message.Author.ID
}

func (r *MessageRequest) DisplayName() string {
	if r.Message == nil || r.Message.Author == nil {
		return ""
	}
	if r.Message.Member != nil && r.Message.Member.Nick != "" {
		return r.Message.Member.Nick
	}
	if r.Message.Author.GlobalName != "" {
		return r.Message.Author.GlobalName
	}
	return r.Message.Author.Username
}

func (r *MessageRequest) GuildID() string {
	if r.Message == nil {
		return ""
	}
	return r.Message.GuildID
}

func (r *MessageRequest) VoiceChannelID() string {
	guildID := r.GuildID()
	userID := r.ActorID()
	if guildID == "" || userID == "" {
		return ""
	}
	channelID, err := music.FindUserVoiceChannel(r.Session, guildID, userID)
	if err != nil {
		return ""
	}
	return channelID
}

// PlayErrorText maps a playback error to the user-facing reply.
func PlayErrorText(err error) string {
	switch {
	case errors.Is(err, music.ErrMissingInput):
		return "Tell me what to play."
	case errors.Is(err, music.ErrNoVoiceChannel):
		return "Join a voice channel first."
	case errors.Is(err, music.ErrNothingFound):
		return "No results for that search."
	case errors.Is(err, music.ErrQueueFull):
		return "The queue is full."
	case errors.Is(err, music.ErrVoiceTransport):
		return "Could not join your voice channel."
	default:
		return "Something went wrong while queuing that track."
	}
}

func (r *MessageRequest) Reply(content string) {
	if r.Session == nil || r.Message == nil {
		return
	}
	_, _ = r.Session.ChannelMessageSendComplex(r.Message.ChannelID, &discordgo.MessageSend{
		Components: NoticeComponents("Notice", content),
		Flags:      discordgo.MessageFlagsIsComponentsV2,
		Reference: &discordgo.MessageReference{
			MessageID: r.Message.ID,
			ChannelID: r.Message.ChannelID,
			GuildID:   r.Message.GuildID,
		},
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse:       []discordgo.AllowedMentionType{},
			RepliedUser: false,
		},
	})
}
