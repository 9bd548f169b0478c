package music

import (
	"context"
	"sync"
)

const (
	defaultVolume      = 0.5
	defaultMaxQueueLen = 500
)

// Deps carries everything a Player needs. Zero fields fall back to the
// production implementations so tests can swap in fakes piecemeal.
type Deps struct {
	Locator       Locator
	Factory       SourceFactory
	Cache         *MediaCache
	Dialer        VoiceDialer
	Notifier      StateNotifier
	DefaultVolume float64
	MaxQueueSize  int
}

// PlayerManager owns the per-guild player registry. There is exactly one
// Player per guild id; callers always go through Get.
type PlayerManager struct {
	mu      sync.Mutex
	players map[string]*Player
	deps    Deps
}

func NewPlayerManager(deps Deps) *PlayerManager {
	if deps.Locator == nil {
		deps.Locator = NewYTDLPLocator()
	}
	if deps.Factory == nil {
		deps.Factory = NewFFmpegSourceFactory()
	}
	if deps.Cache == nil {
		deps.Cache = NewMediaCacheFromDefault()
	}
	if deps.DefaultVolume <= 0 {
		deps.DefaultVolume = defaultVolume
	}
	if deps.MaxQueueSize <= 0 {
		deps.MaxQueueSize = defaultMaxQueueLen
	}

	return &PlayerManager{
		players: make(map[string]*Player),
		deps:    deps,
	}
}

// Get returns the guild's player, creating it on first use.
func (m *PlayerManager) Get(guildID string) *Player {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.players[guildID]; ok {
		return p
	}

	p := &Player{
		guildID:  guildID,
		locator:  m.deps.Locator,
		factory:  m.deps.Factory,
		cache:    m.deps.Cache,
		dialer:   m.deps.Dialer,
		notifier: m.deps.Notifier,
		queue:    NewQueue(m.deps.MaxQueueSize),
		phase:    PhaseIdle,
		volume:   m.deps.DefaultVolume,
		stopCh:   make(chan struct{}, 1),
		skipCh:   make(chan struct{}, 1),
		volCh:    make(chan struct{}, 1),
		wakeCh:   make(chan struct{}, 1),
	}
	m.players[guildID] = p
	return p
}

// Peek returns the guild's player only if it already exists.
func (m *PlayerManager) Peek(guildID string) (*Player, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[guildID]
	return p, ok
}

// ActiveCount reports how many guilds currently hold a voice connection.
func (m *PlayerManager) ActiveCount() int {
	m.mu.Lock()
	players := make([]*Player, 0, len(m.players))
	for _, p := range m.players {
		players = append(players, p)
	}
	m.mu.Unlock()

	active := 0
	for _, p := range players {
		if p.HasVoiceConnection() {
			active++
		}
	}
	return active
}

// Shutdown disconnects every guild's voice session.
func (m *PlayerManager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	players := make([]*Player, 0, len(m.players))
	for _, p := range m.players {
		players = append(players, p)
	}
	m.mu.Unlock()

	for _, p := range players {
		if p.HasVoiceConnection() {
			_ = p.Leave()
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
