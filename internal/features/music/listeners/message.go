package listeners

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/hykim/melobot/internal/features/card"
	"github.com/hykim/melobot/internal/features/music/queueview"
	"github.com/hykim/melobot/internal/features/shared"
	"github.com/hykim/melobot/internal/music"
)

const (
	commandPrefix       = "!"
	cardAutoDeleteDelay = 30 * time.Second
	playTimeout         = 60 * time.Second
)

// Listeners wires gateway events into the player: prefix commands anywhere,
// plain text inside the card channel as a play request, and voice-state
// watching for empty channels.
type Listeners struct {
	Svc       *music.Service
	Card      *card.Manager
	AutoLeave time.Duration
}

func New(svc *music.Service, cardManager *card.Manager, autoLeave time.Duration) *Listeners {
	return &Listeners{Svc: svc, Card: cardManager, AutoLeave: autoLeave}
}

func (l *Listeners) HandleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if s == nil || m == nil || m.Author == nil || m.Author.Bot {
		return
	}
	if m.GuildID == "" {
		return
	}

	content := strings.TrimSpace(m.Content)
	if content == "" {
		return
	}

	if strings.HasPrefix(content, commandPrefix) {
		l.handlePrefixCommand(s, m, strings.TrimPrefix(content, commandPrefix))
		return
	}

	if !l.Card.IsCardChannel(s, m.GuildID, m.ChannelID) {
		return
	}

	// Anything typed into the card channel is a play request. The channel
	// stays clean: both the request and the bot's reply get deleted.
	scheduleDelete(s, m.ChannelID, m.ID, cardAutoDeleteDelay)
	l.playFromMessage(s, m, content)
}

func (l *Listeners) handlePrefixCommand(s *discordgo.Session, m *discordgo.MessageCreate, rest string) {
	name, arg, _ := strings.Cut(rest, " ")
	name = strings.ToLower(strings.TrimSpace(name))
	arg = strings.TrimSpace(arg)

	player := l.Svc.Manager().Get(m.GuildID)
	req := shared.NewMessageRequest(s, m)

	switch name {
	case "play", "p", "search":
		l.playFromMessage(s, m, arg)
	case "music", "help":
		req.Reply("Commands: `!play <query>`, `!skip`, `!stop`, `!pause`, `!resume`, " +
			"`!queue`, `!volume <0-100>`, `!loop`, `!shuffle`, `!leave`, `!nowplaying`")
	case "skip", "s":
		if err := player.Skip(); err != nil {
			req.Reply("Nothing is playing right now.")
		}
	case "stop":
		if err := player.Stop(); err != nil {
			log.Printf("stop failed: %v", err)
		}
		req.Reply("Stopped playback and cleared the queue.")
	case "pause":
		if err := player.Pause(); err != nil {
			req.Reply("Nothing is playing right now.")
		}
	case "resume":
		if err := player.Resume(); err != nil {
			req.Reply("Nothing is paused right now.")
		}
	case "queue", "q":
		l.sendQueue(s, m, player)
	case "volume", "vol":
		l.setVolume(req, player, arg)
	case "loop":
		if player.ToggleLoop() {
			req.Reply("Loop is now **on**.")
		} else {
			req.Reply("Loop is now **off**.")
		}
	case "shuffle":
		player.Shuffle()
		req.Reply("Shuffled the queue.")
	case "leave", "dc":
		if err := player.Leave(); err != nil {
			req.Reply("I am not in a voice channel.")
		}
	case "nowplaying", "np":
		l.sendNowPlaying(req, player)
	}
}

func (l *Listeners) playFromMessage(s *discordgo.Session, m *discordgo.MessageCreate, query string) {
	ctx, cancel := context.WithTimeout(context.Background(), playTimeout)
	defer cancel()

	req := shared.NewMessageRequest(s, m)
	track, err := l.Svc.Play(ctx, req, query)
	if err != nil {
		req.Reply(shared.PlayErrorText(err))
		return
	}
	req.Reply(fmt.Sprintf("Queued **%s**.", track.Title))
}

func (l *Listeners) sendQueue(s *discordgo.Session, m *discordgo.MessageCreate, p *music.Player) {
	components, _ := queueview.BuildQueueComponents(p.Snapshot(), 1, queueview.DefaultPerPage)

	msg, err := s.ChannelMessageSendComplex(m.ChannelID, &discordgo.MessageSend{
		Components: components,
		Flags:      discordgo.MessageFlagsIsComponentsV2,
		Reference: &discordgo.MessageReference{
			MessageID: m.ID,
			ChannelID: m.ChannelID,
			GuildID:   m.GuildID,
		},
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse:       []discordgo.AllowedMentionType{},
			RepliedUser: false,
		},
	})
	if err != nil {
		log.Printf("queue reply failed: %v", err)
		return
	}
	if l.Card.IsCardChannel(s, m.GuildID, m.ChannelID) && msg != nil {
		scheduleDelete(s, m.ChannelID, msg.ID, cardAutoDeleteDelay)
	}
}

func (l *Listeners) setVolume(req *shared.MessageRequest, p *music.Player, arg string) {
	if arg == "" {
		req.Reply(fmt.Sprintf("Volume is **%d%%**.", int(p.Volume()*100+0.5)))
		return
	}

	level, err := strconv.Atoi(strings.TrimSuffix(arg, "%"))
	if err != nil || level < 0 || level > 100 {
		req.Reply("Volume must be a number between 0 and 100.")
		return
	}

	p.SetVolume(float64(level) / 100)
	req.Reply(fmt.Sprintf("Volume set to **%d%%**.", level))
}

func (l *Listeners) sendNowPlaying(req *shared.MessageRequest, p *music.Player) {
	snap := p.Snapshot()
	if snap.Current == nil {
		req.Reply("Nothing is playing right now.")
		return
	}

	line := fmt.Sprintf("**%s**", snap.Current.Title)
	if snap.Current.Artist != "" {
		line = fmt.Sprintf("**%s** by %s", snap.Current.Title, snap.Current.Artist)
	}
	if snap.Current.Duration > 0 {
		line += fmt.Sprintf("\n`%s / %s`", formatClock(snap.Position), formatClock(snap.Current.Duration))
	}
	req.Reply(line)
}

func formatClock(d time.Duration) string {
	total := int(d.Seconds())
	if total < 0 {
		total = 0
	}
	if total >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", total/3600, (total%3600)/60, total%60)
	}
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func scheduleDelete(s *discordgo.Session, channelID, messageID string, delay time.Duration) {
	if s == nil || channelID == "" || messageID == "" {
		return
	}
	time.AfterFunc(delay, func() {
		_ = s.ChannelMessageDelete(channelID, messageID)
	})
}
