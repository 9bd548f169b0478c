package music

// PlaybackRequest is the context a playback command arrives with. Each real
// entry point (prefix message, slash command, card button) implements it, so
// the core never needs to know what kind of surface asked.
type PlaybackRequest interface {
	ActorID() string
	DisplayName() string
	GuildID() string

	// VoiceChannelID returns the requester's current voice channel, or ""
	// when the requester is not in any voice channel.
	VoiceChannelID() string

	// Reply sends a best-effort user-facing message. Failures are ignored.
	Reply(content string)
}
