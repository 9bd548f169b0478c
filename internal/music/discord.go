package music

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// SessionDialer adapts a discordgo session to the VoiceDialer interface.
type SessionDialer struct {
	Session *discordgo.Session
}

func NewSessionDialer(s *discordgo.Session) *SessionDialer {
	return &SessionDialer{Session: s}
}

func (d *SessionDialer) Join(guildID, channelID string) (VoiceConn, error) {
	if d.Session == nil {
		return nil, fmt.Errorf("discord session is nil")
	}
	if channelID == "" {
		return nil, fmt.Errorf("channel ID is empty")
	}

	vc, err := d.Session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, err
	}
	return &discordVoiceConn{vc: vc}, nil
}

type discordVoiceConn struct {
	vc *discordgo.VoiceConnection
}

func (c *discordVoiceConn) ChannelID() string {
	if c.vc == nil {
		return ""
	}
	return c.vc.ChannelID
}

func (c *discordVoiceConn) Speaking(on bool) error {
	if c.vc == nil || !c.vc.Ready {
		return nil
	}
	return c.vc.Speaking(on)
}

func (c *discordVoiceConn) OpusSend() chan<- []byte {
	if c.vc == nil {
		return nil
	}
	return c.vc.OpusSend
}

func (c *discordVoiceConn) Disconnect() error {
	if c.vc == nil {
		return nil
	}
	return c.vc.Disconnect()
}

// FindUserVoiceChannel returns the voice channel the user currently sits in,
// or ErrNoVoiceChannel.
func FindUserVoiceChannel(s *discordgo.Session, guildID string, userID string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("discord session is nil")
	}

	var guild *discordgo.Guild
	if s.State != nil {
		if g, err := s.State.Guild(guildID); err == nil {
			guild = g
		}
	}
	if guild == nil {
		g, err := s.Guild(guildID)
		if err != nil {
			return "", err
		}
		guild = g
	}

	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID && vs.ChannelID != "" {
			return vs.ChannelID, nil
		}
	}

	return "", ErrNoVoiceChannel
}
