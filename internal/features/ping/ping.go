package ping

import (
	"fmt"
	"log"
	"runtime"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/hykim/melobot/internal/music"
)

const RefreshCustomID = "ping_refresh"

var botStartedAt = time.Now()

// BuildStatusComponents renders the latency and runtime status card.
func BuildStatusComponents(s *discordgo.Session, manager *music.PlayerManager) []discordgo.MessageComponent {
	latency := s.HeartbeatLatency().Round(time.Millisecond)

	gatewayLatency := latency
	if !s.LastHeartbeatAck.IsZero() {
		gatewayLatency = time.Since(s.LastHeartbeatAck).Round(time.Millisecond)
	}

	guilds := 0
	if s.State != nil {
		guilds = len(s.State.Guilds)
	}
	shards := s.ShardCount
	if shards == 0 {
		shards = 1
	}

	activePlayers := 0
	if manager != nil {
		activePlayers = manager.ActiveCount()
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	uptime := time.Since(botStartedAt).Round(time.Second)

	accent := 0x3C6AA1
	divider := true
	spacing := discordgo.SeparatorSpacingSizeSmall

	return []discordgo.MessageComponent{
		discordgo.Container{
			AccentColor: &accent,
			Components: []discordgo.MessageComponent{
				discordgo.TextDisplay{Content: "**Pong!**"},
				discordgo.Separator{Divider: &divider, Spacing: &spacing},
				discordgo.Section{
					Components: []discordgo.MessageComponent{
						discordgo.TextDisplay{Content: fmt.Sprintf("**API latency:** %s", latency)},
						discordgo.TextDisplay{Content: fmt.Sprintf("**Gateway latency:** %s", gatewayLatency)},
						discordgo.TextDisplay{Content: fmt.Sprintf("**Servers:** %d • **Shards:** %d • **Playing in:** %d", guilds, shards, activePlayers)},
						discordgo.TextDisplay{Content: fmt.Sprintf("**Uptime:** %s • **Memory:** %.1f MB", uptime, float64(mem.Alloc)/1024.0/1024.0)},
					},
					Accessory: discordgo.Button{
						Style:    discordgo.PrimaryButton,
						Label:    "Refresh",
						CustomID: RefreshCustomID,
					},
				},
				discordgo.TextDisplay{Content: fmt.Sprintf("Updated <t:%d:R>", time.Now().Unix())},
			},
		},
	}
}

// RespondStatus answers either the slash command or the refresh button with
// the current status card.
func RespondStatus(s *discordgo.Session, i *discordgo.InteractionCreate, manager *music.PlayerManager, respType discordgo.InteractionResponseType) {
	if s == nil || i == nil {
		return
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: respType,
		Data: &discordgo.InteractionResponseData{
			Components: BuildStatusComponents(s, manager),
			Flags:      discordgo.MessageFlagsIsComponentsV2 | discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		log.Printf("failed to respond to ping: %v", err)
	}
}
