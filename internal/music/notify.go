package music

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// StateNotifier is told after every player state transition. The UI layer
// decides whether and how to redraw; the core never builds a display.
type StateNotifier interface {
	StateChanged(guildID string)
}

// NotifierFunc adapts a function to StateNotifier.
type NotifierFunc func(guildID string)

func (f NotifierFunc) StateChanged(guildID string) { f(guildID) }

const (
	notifyInterval = 2 * time.Second
	notifyBurst    = 1
)

// RateLimitedNotifier collapses bursts of transitions into bounded redraw
// attempts per guild. A suppressed notification is delivered once the
// limiter allows again, so the final state is never lost.
type RateLimitedNotifier struct {
	next StateNotifier

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	pending  map[string]bool
}

func NewRateLimitedNotifier(next StateNotifier) *RateLimitedNotifier {
	return &RateLimitedNotifier{
		next:     next,
		limiters: make(map[string]*rate.Limiter),
		pending:  make(map[string]bool),
	}
}

func (n *RateLimitedNotifier) StateChanged(guildID string) {
	if n == nil || n.next == nil || guildID == "" {
		return
	}

	n.mu.Lock()
	lim, ok := n.limiters[guildID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(notifyInterval), notifyBurst)
		n.limiters[guildID] = lim
	}

	if !lim.Allow() {
		if !n.pending[guildID] {
			n.pending[guildID] = true
			delay := lim.Reserve().Delay()
			time.AfterFunc(delay, func() { n.flush(guildID) })
		}
		n.mu.Unlock()
		return
	}
	n.mu.Unlock()

	// The caller is usually a player worker goroutine; never make it wait
	// on a Discord round trip.
	go n.next.StateChanged(guildID)
}

func (n *RateLimitedNotifier) flush(guildID string) {
	n.mu.Lock()
	n.pending[guildID] = false
	n.mu.Unlock()

	n.next.StateChanged(guildID)
}
