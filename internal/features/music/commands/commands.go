package commands

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/hykim/melobot/internal/features/card"
	"github.com/hykim/melobot/internal/features/music/queueview"
	"github.com/hykim/melobot/internal/features/shared"
	"github.com/hykim/melobot/internal/music"
)

const playTimeout = 60 * time.Second

// Handlers serves the music slash commands.
type Handlers struct {
	Svc  *music.Service
	Card *card.Manager
}

func New(svc *music.Service, cardManager *card.Manager) *Handlers {
	return &Handlers{Svc: svc, Card: cardManager}
}

// Play resolves the query and queues the resulting track, connecting to the
// requester's voice channel if needed.
func (h *Handlers) Play(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		shared.RespondEphemeral(s, i, "This command only works inside a server.")
		return
	}

	query := shared.GetOptionString(i.ApplicationCommandData().Options, "query")

	if err := shared.DeferEphemeral(s, i); err != nil {
		log.Printf("play defer failed: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), playTimeout)
	defer cancel()

	req := shared.NewInteractionRequest(s, i)
	track, err := h.Svc.Play(ctx, req, query)
	if err != nil {
		req.Reply(shared.PlayErrorText(err))
		return
	}
	req.Reply(fmt.Sprintf("Queued **%s**.", track.Title))
}

// Music dispatches the /music subcommands.
func (h *Handlers) Music(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		shared.RespondEphemeral(s, i, "This command only works inside a server.")
		return
	}

	options := i.ApplicationCommandData().Options
	if len(options) == 0 {
		shared.RespondEphemeral(s, i, "Unknown subcommand.")
		return
	}

	sub := options[0]
	player := h.Svc.Manager().Get(i.GuildID)

	switch sub.Name {
	case "skip":
		h.skip(s, i, player)
	case "stop":
		h.stop(s, i, player)
	case "pause":
		h.pause(s, i, player)
	case "resume":
		h.resume(s, i, player)
	case "queue":
		h.queue(s, i, player)
	case "loop":
		h.loop(s, i, player)
	case "shuffle":
		h.shuffle(s, i, player)
	case "volume":
		h.volume(s, i, player, sub.Options)
	case "leave":
		h.leave(s, i, player)
	case "nowplaying":
		h.nowPlaying(s, i, player)
	default:
		shared.RespondEphemeral(s, i, "Unknown subcommand.")
	}
}

func (h *Handlers) skip(s *discordgo.Session, i *discordgo.InteractionCreate, p *music.Player) {
	if err := p.Skip(); err != nil {
		shared.RespondEphemeral(s, i, "Nothing is playing right now.")
		return
	}
	shared.RespondEphemeral(s, i, "Skipped.")
}

func (h *Handlers) stop(s *discordgo.Session, i *discordgo.InteractionCreate, p *music.Player) {
	if err := p.Stop(); err != nil {
		log.Printf("stop failed: %v", err)
	}
	shared.RespondEphemeral(s, i, "Stopped playback and cleared the queue.")
}

func (h *Handlers) pause(s *discordgo.Session, i *discordgo.InteractionCreate, p *music.Player) {
	if err := p.Pause(); err != nil {
		shared.RespondEphemeral(s, i, "Nothing is playing right now.")
		return
	}
	shared.RespondEphemeral(s, i, "Paused.")
}

func (h *Handlers) resume(s *discordgo.Session, i *discordgo.InteractionCreate, p *music.Player) {
	if err := p.Resume(); err != nil {
		shared.RespondEphemeral(s, i, "Nothing is paused right now.")
		return
	}
	shared.RespondEphemeral(s, i, "Resumed.")
}

func (h *Handlers) queue(s *discordgo.Session, i *discordgo.InteractionCreate, p *music.Player) {
	components, _ := queueview.BuildQueueComponents(p.Snapshot(), 1, queueview.DefaultPerPage)

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Components: components,
			Flags:      discordgo.MessageFlagsIsComponentsV2 | discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		log.Printf("queue respond failed: %v", err)
	}
}

func (h *Handlers) loop(s *discordgo.Session, i *discordgo.InteractionCreate, p *music.Player) {
	if p.ToggleLoop() {
		shared.RespondEphemeral(s, i, "Loop is now **on**. The current track will repeat.")
		return
	}
	shared.RespondEphemeral(s, i, "Loop is now **off**.")
}

func (h *Handlers) shuffle(s *discordgo.Session, i *discordgo.InteractionCreate, p *music.Player) {
	p.Shuffle()
	shared.RespondEphemeral(s, i, "Shuffled the queue.")
}

func (h *Handlers) volume(s *discordgo.Session, i *discordgo.InteractionCreate, p *music.Player, options []*discordgo.ApplicationCommandInteractionDataOption) {
	if !shared.HasOption(options, "level") {
		shared.RespondEphemeral(s, i, fmt.Sprintf("Volume is **%d%%**.", int(p.Volume()*100+0.5)))
		return
	}

	level := shared.GetOptionInt64(options, "level")
	if level < 0 || level > 100 {
		shared.RespondEphemeral(s, i, "Volume must be between 0 and 100.")
		return
	}

	p.SetVolume(float64(level) / 100)
	shared.RespondEphemeral(s, i, fmt.Sprintf("Volume set to **%d%%**.", level))
}

func (h *Handlers) leave(s *discordgo.Session, i *discordgo.InteractionCreate, p *music.Player) {
	if err := p.Leave(); err != nil {
		shared.RespondEphemeral(s, i, "I am not in a voice channel.")
		return
	}
	shared.RespondEphemeral(s, i, "Left the voice channel.")
}

func (h *Handlers) nowPlaying(s *discordgo.Session, i *discordgo.InteractionCreate, p *music.Player) {
	snap := p.Snapshot()
	if snap.Current == nil {
		shared.RespondEphemeral(s, i, "Nothing is playing right now.")
		return
	}

	line := fmt.Sprintf("**%s**", snap.Current.Title)
	if snap.Current.Artist != "" {
		line = fmt.Sprintf("**%s** by %s", snap.Current.Title, snap.Current.Artist)
	}
	if snap.Current.Duration > 0 {
		line += fmt.Sprintf("\n`%s / %s`", formatClock(snap.Position), formatClock(snap.Current.Duration))
	}
	if snap.Loop {
		line += "\n🔁 Loop is on."
	}
	shared.RespondEphemeral(s, i, line)
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
