package music

// VoiceConn is the live audio transport to one voice channel. Exactly one
// exists per guild, owned by that guild's Player.
type VoiceConn interface {
	ChannelID() string
	Speaking(on bool) error
	OpusSend() chan<- []byte
	Disconnect() error
}

// VoiceDialer establishes voice connections. Joining a guild the dialer is
// already connected to moves the existing connection instead.
type VoiceDialer interface {
	Join(guildID, channelID string) (VoiceConn, error)
}
