package card

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/hykim/melobot/internal/features/music/queueview"
	"github.com/hykim/melobot/internal/features/shared"
	"github.com/hykim/melobot/internal/music"
)

const (
	addModalTimeout = 60 * time.Second
	playTimeout     = 60 * time.Second
	volumeStep      = 0.1
)

// Route dispatches card button presses. It reports whether the interaction
// belonged to the card.
func (m *Manager) Route(s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	if i == nil || i.Type != discordgo.InteractionMessageComponent {
		return false
	}

	customID := i.MessageComponentData().CustomID
	if page, perPage, ok := queueview.ParseQueuePageCustomID(customID); ok {
		m.handleQueuePage(s, i, page, perPage)
		return true
	}
	if !strings.HasPrefix(customID, "card_") {
		return false
	}

	if i.GuildID == "" {
		shared.RespondEphemeral(s, i, "These buttons only work inside a server.")
		return true
	}

	switch customID {
	case customIDJoin:
		m.handleJoin(s, i)
	case customIDAdd:
		m.handleAdd(s, i)
	case customIDPause:
		m.handlePause(s, i)
	case customIDSkip:
		m.handleSkip(s, i)
	case customIDStop:
		m.handleStop(s, i)
	case customIDLoop:
		m.handleLoop(s, i)
	case customIDShuffle:
		m.handleShuffle(s, i)
	case customIDQueue:
		m.handleQueue(s, i)
	case customIDVolDown:
		m.handleVolume(s, i, -volumeStep)
	case customIDVolUp:
		m.handleVolume(s, i, volumeStep)
	}
	return true
}

func (m *Manager) handleJoin(s *discordgo.Session, i *discordgo.InteractionCreate) {
	player := m.svc.Manager().Get(i.GuildID)

	if player.HasVoiceConnection() {
		if err := player.Leave(); err != nil && !errors.Is(err, music.ErrVoiceNotConnected) {
			log.Printf("card leave failed: %v", err)
		}
		m.RespondUpdate(s, i)
		return
	}

	req := shared.NewInteractionRequest(s, i)
	channelID := req.VoiceChannelID()
	if channelID == "" {
		shared.RespondEphemeral(s, i, "Join a voice channel first.")
		return
	}

	if err := player.Join(channelID); err != nil {
		log.Printf("card join failed: %v", err)
		shared.RespondEphemeral(s, i, "Could not join your voice channel.")
		return
	}
	m.RespondUpdate(s, i)
}

func (m *Manager) handleAdd(s *discordgo.Session, i *discordgo.InteractionCreate) {
	modal := &discordgo.InteractionResponseData{
		CustomID: addTrackModalID,
		Title:    "Add a track",
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    addTrackInputID,
						Label:       "Song name or URL",
						Style:       discordgo.TextInputShort,
						Placeholder: "Title, artist, or a link",
						Required:    true,
					},
				},
			},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), addModalTimeout)
	defer cancel()

	response, err := m.awaiter.ShowAndAwaitModal(ctx, s, i, modal)
	if err != nil {
		log.Printf("add track modal: %v", err)
		return
	}

	if err := shared.DeferEphemeral(s, response.Interaction); err != nil {
		log.Printf("add track defer failed: %v", err)
		return
	}

	query := strings.TrimSpace(modalInputValue(response.Data, addTrackInputID))
	req := shared.NewInteractionRequest(s, response.Interaction)

	playCtx, cancelPlay := context.WithTimeout(context.Background(), playTimeout)
	defer cancelPlay()

	track, err := m.svc.Play(playCtx, req, query)
	if err != nil {
		req.Reply(shared.PlayErrorText(err))
		return
	}
	req.Reply(fmt.Sprintf("Queued **%s**.", track.Title))
}

func (m *Manager) handlePause(s *discordgo.Session, i *discordgo.InteractionCreate) {
	player := m.svc.Manager().Get(i.GuildID)

	var err error
	if player.Snapshot().Phase == music.PhasePaused {
		err = player.Resume()
	} else {
		err = player.Pause()
	}
	if err != nil {
		shared.RespondEphemeral(s, i, "Nothing is playing right now.")
		return
	}
	m.RespondUpdate(s, i)
}

func (m *Manager) handleSkip(s *discordgo.Session, i *discordgo.InteractionCreate) {
	player := m.svc.Manager().Get(i.GuildID)
	if err := player.Skip(); err != nil {
		shared.RespondEphemeral(s, i, "Nothing is playing right now.")
		return
	}
	m.RespondUpdate(s, i)
}

func (m *Manager) handleStop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	player := m.svc.Manager().Get(i.GuildID)
	if err := player.Stop(); err != nil {
		log.Printf("card stop failed: %v", err)
	}
	m.RespondUpdate(s, i)
}

func (m *Manager) handleLoop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	m.svc.Manager().Get(i.GuildID).ToggleLoop()
	m.RespondUpdate(s, i)
}

func (m *Manager) handleShuffle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	m.svc.Manager().Get(i.GuildID).Shuffle()
	m.RespondUpdate(s, i)
}

func (m *Manager) handleQueue(s *discordgo.Session, i *discordgo.InteractionCreate) {
	snap := m.svc.Manager().Get(i.GuildID).Snapshot()
	components, _ := queueview.BuildQueueComponents(snap, 1, queueview.DefaultPerPage)

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Components: components,
			Flags:      discordgo.MessageFlagsIsComponentsV2 | discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		log.Printf("card queue respond failed: %v", err)
	}
}

func (m *Manager) handleQueuePage(s *discordgo.Session, i *discordgo.InteractionCreate, page, perPage int) {
	if i.GuildID == "" {
		return
	}
	snap := m.svc.Manager().Get(i.GuildID).Snapshot()
	components, _ := queueview.BuildQueueComponents(snap, page, perPage)

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Components: components,
			Flags:      discordgo.MessageFlagsIsComponentsV2,
		},
	})
	if err != nil {
		log.Printf("queue page respond failed: %v", err)
	}
}

func (m *Manager) handleVolume(s *discordgo.Session, i *discordgo.InteractionCreate, delta float64) {
	player := m.svc.Manager().Get(i.GuildID)
	player.SetVolume(player.Volume() + delta)
	m.RespondUpdate(s, i)
}

// HandleModal claims pending modal submissions for the awaiter.
func (m *Manager) HandleModal(i *discordgo.InteractionCreate) bool {
	return m.awaiter.HandleInteraction(i)
}

func modalInputValue(data discordgo.ModalSubmitInteractionData, customID string) string {
	for _, component := range data.Components {
		var row discordgo.ActionsRow
		switch r := component.(type) {
		case discordgo.ActionsRow:
			row = r
		case *discordgo.ActionsRow:
			row = *r
		default:
			continue
		}
		for _, inner := range row.Components {
			switch input := inner.(type) {
			case discordgo.TextInput:
				if input.CustomID == customID {
					return input.Value
				}
			case *discordgo.TextInput:
				if input.CustomID == customID {
					return input.Value
				}
			}
		}
	}
	return ""
}
