package card

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/hykim/melobot/internal/database"
	"github.com/hykim/melobot/internal/features/modals"
	"github.com/hykim/melobot/internal/music"
)

// DefaultCardChannelName is used when setup is invoked without an explicit
// channel name.
const DefaultCardChannelName = "🎵-melobot"

const (
	progressTickInterval = 8 * time.Second
	progressBucket       = 8 * time.Second
	minEditInterval      = 5 * time.Second
)

// Entry is where a guild's player card message lives.
type Entry struct {
	ChannelID string
	MessageID string
}

// Manager owns the per-guild player card: a single pinned-style message with
// playback controls, redrawn on every player state change and on a slow
// progress tick while a track plays.
type Manager struct {
	svc        *music.Service
	repo       *database.CardRepository
	awaiter    *modals.Awaiter
	sessionFor func(guildID string) *discordgo.Session

	mu      sync.RWMutex
	byGuild map[string]Entry

	renderMu sync.Mutex
	lastEdit map[string]renderState

	tickMu  sync.Mutex
	tickers map[string]context.CancelFunc
}

type renderState struct {
	hash string
	at   time.Time
}

func NewManager(
	svc *music.Service,
	repo *database.CardRepository,
	awaiter *modals.Awaiter,
	sessionFor func(guildID string) *discordgo.Session,
) *Manager {
	return &Manager{
		svc:        svc,
		repo:       repo,
		awaiter:    awaiter,
		sessionFor: sessionFor,
		byGuild:    make(map[string]Entry),
		lastEdit:   make(map[string]renderState),
		tickers:    make(map[string]context.CancelFunc),
	}
}

// StateChanged implements music.StateNotifier: every player transition
// triggers a card redraw for guilds that have one.
func (m *Manager) StateChanged(guildID string) {
	s := m.sessionFor(guildID)
	if s == nil {
		return
	}
	if err := m.UpdateByGuild(s, guildID); err != nil {
		log.Printf("card update failed for guild %s: %v", guildID, err)
	}
}

func (m *Manager) entry(guildID string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.byGuild[guildID]
	return entry, ok
}

func (m *Manager) setEntry(guildID string, entry Entry) {
	m.mu.Lock()
	m.byGuild[guildID] = entry
	m.mu.Unlock()
}

func (m *Manager) clearEntry(guildID string) {
	m.stopProgressTicker(guildID)
	m.renderMu.Lock()
	delete(m.lastEdit, guildID)
	m.renderMu.Unlock()
	m.mu.Lock()
	delete(m.byGuild, guildID)
	m.mu.Unlock()
}

// loadEntry resolves the card location, falling back to the database after
// a restart.
func (m *Manager) loadEntry(guildID string) (Entry, bool) {
	if entry, ok := m.entry(guildID); ok && entry.ChannelID != "" && entry.MessageID != "" {
		return entry, true
	}

	channelID, messageID, ok, err := m.repo.GetPlayerCard(guildID)
	if err != nil {
		log.Printf("failed to load player card entry: %v", err)
		return Entry{}, false
	}
	if !ok || channelID == "" || messageID == "" {
		return Entry{}, false
	}

	entry := Entry{ChannelID: channelID, MessageID: messageID}
	m.setEntry(guildID, entry)
	return entry, true
}

// CardChannelID returns the channel hosting the guild's card, or "" when
// the guild has none.
func (m *Manager) CardChannelID(guildID string) string {
	entry, ok := m.loadEntry(guildID)
	if !ok {
		return ""
	}
	return entry.ChannelID
}

// IsCardChannel reports whether the channel hosts the guild's player card.
func (m *Manager) IsCardChannel(s *discordgo.Session, guildID, channelID string) bool {
	if entry, ok := m.loadEntry(guildID); ok {
		return entry.ChannelID == channelID
	}

	ch, err := s.Channel(channelID)
	return err == nil && ch != nil && ch.Name == DefaultCardChannelName
}

// UpdateByGuild redraws the guild's card message in place. Guilds without a
// configured card are a silent no-op.
func (m *Manager) UpdateByGuild(s *discordgo.Session, guildID string) error {
	if s == nil || guildID == "" {
		return fmt.Errorf("invalid card update parameters")
	}

	entry, ok := m.loadEntry(guildID)
	if !ok {
		return nil
	}

	player := m.svc.Manager().Get(guildID)
	snap := player.Snapshot()

	if snap.Phase == music.PhasePlaying {
		m.startProgressTicker(s, guildID)
	} else {
		m.stopProgressTicker(guildID)
	}

	components := BuildCardComponents(snap, player.HasVoiceConnection())

	_, err := s.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         entry.MessageID,
		Channel:    entry.ChannelID,
		Components: &components,
		Flags:      discordgo.MessageFlagsIsComponentsV2,
	})
	if err == nil {
		m.recordRender(guildID, snap)
		return nil
	}

	// The card message or its channel may have been deleted by hand. Forget
	// the entry so setup can recreate it; never treat this as fatal.
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil &&
		(restErr.Response.StatusCode == 404 || restErr.Response.StatusCode == 403) {
		m.clearEntry(guildID)
		if repoErr := m.repo.DeletePlayerCard(guildID); repoErr != nil {
			log.Printf("failed to delete stale card entry: %v", repoErr)
		}
		return nil
	}
	return err
}

// RespondUpdate answers a component interaction by replacing the card
// message with a fresh render.
func (m *Manager) RespondUpdate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if s == nil || i == nil {
		return
	}

	player := m.svc.Manager().Get(i.GuildID)
	snap := player.Snapshot()

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Components: BuildCardComponents(snap, player.HasVoiceConnection()),
			Flags:      discordgo.MessageFlagsIsComponentsV2,
		},
	})
	if err != nil {
		log.Printf("failed to update card message: %v", err)
		return
	}
	m.recordRender(i.GuildID, snap)
}

func snapshotHash(snap music.Snapshot) string {
	if snap.Current == nil {
		return fmt.Sprintf("idle:queue=%d:loop=%t:vol=%d", len(snap.Queue), snap.Loop, int(snap.Volume*100))
	}
	bucket := int(snap.Position / progressBucket)
	return fmt.Sprintf("%s:%s:%d:queue=%d:loop=%t:vol=%d",
		snap.Phase, snap.Current.Title, bucket, len(snap.Queue), snap.Loop, int(snap.Volume*100))
}

func (m *Manager) shouldRedraw(guildID string, snap music.Snapshot) bool {
	hash := snapshotHash(snap)

	m.renderMu.Lock()
	prev, ok := m.lastEdit[guildID]
	m.renderMu.Unlock()

	if ok && prev.hash == hash && time.Since(prev.at) < minEditInterval {
		return false
	}
	return !ok || prev.hash != hash
}

func (m *Manager) recordRender(guildID string, snap music.Snapshot) {
	m.renderMu.Lock()
	m.lastEdit[guildID] = renderState{hash: snapshotHash(snap), at: time.Now()}
	m.renderMu.Unlock()
}

// startProgressTicker keeps the position bar moving while a track plays.
// State-change redraws come through StateChanged; this only covers the
// steady playing phase.
func (m *Manager) startProgressTicker(s *discordgo.Session, guildID string) {
	m.tickMu.Lock()
	if _, exists := m.tickers[guildID]; exists {
		m.tickMu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.tickers[guildID] = cancel
	m.tickMu.Unlock()

	go func() {
		ticker := time.NewTicker(progressTickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snap := m.svc.Manager().Get(guildID).Snapshot()
				if snap.Phase != music.PhasePlaying {
					m.stopProgressTicker(guildID)
					return
				}
				if m.shouldRedraw(guildID, snap) {
					if err := m.UpdateByGuild(s, guildID); err != nil {
						log.Printf("card progress update failed: %v", err)
					}
				}
			}
		}
	}()
}

func (m *Manager) stopProgressTicker(guildID string) {
	m.tickMu.Lock()
	cancel, ok := m.tickers[guildID]
	if ok {
		delete(m.tickers, guildID)
	}
	m.tickMu.Unlock()

	if ok && cancel != nil {
		cancel()
	}
}
