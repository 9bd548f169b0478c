package modals

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// ModalResponse is the user's submission to a modal shown by
// ShowAndAwaitModal.
type ModalResponse struct {
	Interaction *discordgo.InteractionCreate
	Data        discordgo.ModalSubmitInteractionData
}

// Awaiter lets a handler show a modal and block until the matching submit
// interaction arrives. Pending waits are keyed by custom id plus user id, so
// two users can fill the same modal concurrently.
type Awaiter struct {
	mu      sync.RWMutex
	pending map[string]chan *discordgo.InteractionCreate
}

func NewAwaiter() *Awaiter {
	return &Awaiter{
		pending: make(map[string]chan *discordgo.InteractionCreate),
	}
}

// ShowAndAwaitModal responds to the interaction with the modal and waits
// for the submission or context cancellation.
func (a *Awaiter) ShowAndAwaitModal(
	ctx context.Context,
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	modal *discordgo.InteractionResponseData,
) (*ModalResponse, error) {
	userID := interactionUserID(i)
	if userID == "" {
		return nil, fmt.Errorf("missing user id for interaction")
	}

	key := modal.CustomID + ":" + userID
	ch := make(chan *discordgo.InteractionCreate, 1)

	a.mu.Lock()
	a.pending[key] = ch
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.pending, key)
		a.mu.Unlock()
	}()

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: modal,
	})
	if err != nil {
		return nil, err
	}

	select {
	case submission := <-ch:
		if submission.Type != discordgo.InteractionModalSubmit {
			return nil, fmt.Errorf("unexpected interaction type: %v", submission.Type)
		}
		return &ModalResponse{
			Interaction: submission,
			Data:        submission.ModalSubmitData(),
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// HandleInteraction routes a modal submission to its waiter. It reports
// whether the interaction was claimed.
func (a *Awaiter) HandleInteraction(i *discordgo.InteractionCreate) bool {
	if i == nil || i.Type != discordgo.InteractionModalSubmit {
		return false
	}

	customID := i.ModalSubmitData().CustomID
	userID := interactionUserID(i)
	if customID == "" || userID == "" {
		return false
	}

	a.mu.RLock()
	ch, exists := a.pending[customID+":"+userID]
	a.mu.RUnlock()

	if !exists {
		return false
	}

	select {
	case ch <- i:
		return true
	default:
		return false
	}
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
