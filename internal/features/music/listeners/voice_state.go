package listeners

import (
	"errors"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/hykim/melobot/internal/music"
)

// HandleVoiceStateUpdate watches for the bot being left alone in a voice
// channel. Playback stops immediately; the voice connection is dropped after
// the auto-leave delay if nobody has come back.
func (l *Listeners) HandleVoiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if s == nil || vs == nil || vs.GuildID == "" {
		return
	}

	botID := ""
	if s.State != nil && s.State.User != nil {
		botID = s.State.User.ID
	}
	if botID == "" {
		return
	}

	if !l.botAlone(s, vs.GuildID, botID) {
		return
	}

	player, ok := l.Svc.Manager().Peek(vs.GuildID)
	if !ok || !player.HasVoiceConnection() {
		return
	}

	if err := player.Stop(); err != nil && !errors.Is(err, music.ErrVoiceNotConnected) {
		log.Printf("auto-stop failed: %v", err)
	}
	l.notifyCardChannel(s, vs.GuildID, "🔇 Everyone left the voice channel, so playback was stopped.")

	delay := l.AutoLeave
	if delay <= 0 {
		delay = time.Minute
	}
	time.AfterFunc(delay, func() {
		if !l.botAlone(s, vs.GuildID, botID) {
			return
		}
		p, ok := l.Svc.Manager().Peek(vs.GuildID)
		if !ok || !p.HasVoiceConnection() {
			return
		}
		if err := p.Leave(); err != nil && !errors.Is(err, music.ErrVoiceNotConnected) {
			log.Printf("auto-leave failed: %v", err)
		}
	})
}

// botAlone reports whether the bot sits in a voice channel with no other
// users in it.
func (l *Listeners) botAlone(s *discordgo.Session, guildID, botID string) bool {
	guild := guildWithVoiceStates(s, guildID)
	if guild == nil {
		return false
	}

	botChannelID := ""
	for _, state := range guild.VoiceStates {
		if state.UserID == botID && state.ChannelID != "" {
			botChannelID = state.ChannelID
			break
		}
	}
	if botChannelID == "" {
		return false
	}

	for _, state := range guild.VoiceStates {
		if state.ChannelID == botChannelID && state.UserID != botID {
			return false
		}
	}
	return true
}

func (l *Listeners) notifyCardChannel(s *discordgo.Session, guildID, content string) {
	channelID := l.Card.CardChannelID(guildID)
	if channelID == "" {
		return
	}

	msg, err := s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Components: []discordgo.MessageComponent{
			discordgo.TextDisplay{Content: content},
		},
		Flags: discordgo.MessageFlagsIsComponentsV2,
	})
	if err != nil {
		log.Printf("voice notice failed: %v", err)
		return
	}
	if msg != nil {
		scheduleDelete(s, channelID, msg.ID, cardAutoDeleteDelay)
	}
}

func guildWithVoiceStates(s *discordgo.Session, guildID string) *discordgo.Guild {
	if s.State != nil {
		if g, err := s.State.Guild(guildID); err == nil {
			return g
		}
	}
	g, err := s.Guild(guildID)
	if err != nil {
		return nil
	}
	return g
}
