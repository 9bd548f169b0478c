package music

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"
)

const (
	frameDuration     = 20 * time.Millisecond
	pausePollInterval = 100 * time.Millisecond
	sendTimeout       = time.Second
	maxSendTimeouts   = 3
)

// Player holds one guild's playback state: the voice connection, the
// pending queue, the current track, volume and loop flag. A single worker
// goroutine per guild is the only writer over playback progression; command
// methods hand it signals instead of mutating mid-stream state themselves.
type Player struct {
	guildID  string
	locator  Locator
	factory  SourceFactory
	cache    *MediaCache
	dialer   VoiceDialer
	notifier StateNotifier
	queue    *Queue

	mu       sync.Mutex
	conn     VoiceConn
	current  *Track
	replay   *Track
	phase    Phase
	volume   float64
	loop     bool
	paused   bool
	position time.Duration

	stopCh chan struct{}
	skipCh chan struct{}
	volCh  chan struct{}
	wakeCh chan struct{}

	cancel  context.CancelFunc
	running bool
}

func (p *Player) GuildID() string { return p.guildID }

// Join connects the guild's voice transport to the given channel,
// moving an existing connection when it points elsewhere.
func (p *Player) Join(channelID string) error {
	if channelID == "" {
		return ErrNoVoiceChannel
	}

	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()

	if conn != nil && conn.ChannelID() == channelID {
		return nil
	}

	newConn, err := p.dialer.Join(p.guildID, channelID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVoiceTransport, err)
	}

	p.mu.Lock()
	p.conn = newConn
	p.mu.Unlock()
	return nil
}

// Enqueue appends a track and wakes the worker; an idle player starts the
// track immediately instead of merely queuing it.
func (p *Player) Enqueue(track Track) error {
	if err := p.queue.Append(track); err != nil {
		return err
	}

	p.ensureWorker()
	p.signalWake()
	p.notifyState()
	return nil
}

// Skip stops the active source. Completion of a skipped track runs through
// the same continuation as a natural end.
func (p *Player) Skip() error {
	p.mu.Lock()
	if p.phase != PhasePlaying && p.phase != PhasePaused {
		p.mu.Unlock()
		return ErrInvalidOperation
	}
	skipCh := p.skipCh
	p.mu.Unlock()

	select {
	case skipCh <- struct{}{}:
	default:
	}
	return nil
}

// Stop clears the queue and current track before stopping the source, so
// no continuation fires and nothing further plays.
func (p *Player) Stop() error {
	p.queue.Clear()

	p.mu.Lock()
	p.replay = nil
	p.current = nil
	p.paused = false
	wasActive := p.phase == PhasePlaying || p.phase == PhasePaused || p.phase == PhaseResolving
	if !wasActive {
		p.phase = PhaseIdle
		p.position = 0
	}
	stopCh := p.stopCh
	p.mu.Unlock()

	if wasActive {
		select {
		case stopCh <- struct{}{}:
		default:
		}
	}

	p.notifyState()
	return nil
}

func (p *Player) Pause() error {
	p.mu.Lock()
	if p.phase != PhasePlaying {
		p.mu.Unlock()
		return ErrInvalidOperation
	}
	p.paused = true
	p.phase = PhasePaused
	p.mu.Unlock()

	p.notifyState()
	return nil
}

func (p *Player) Resume() error {
	p.mu.Lock()
	if p.phase != PhasePaused {
		p.mu.Unlock()
		return ErrInvalidOperation
	}
	p.paused = false
	p.phase = PhasePlaying
	p.mu.Unlock()

	p.notifyState()
	return nil
}

// SetVolume clamps to [0,1], retains the value for subsequently started
// tracks, and applies it to the active source immediately.
func (p *Player) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}

	p.mu.Lock()
	p.volume = v
	active := p.phase == PhasePlaying || p.phase == PhasePaused
	volCh := p.volCh
	p.mu.Unlock()

	if active {
		select {
		case volCh <- struct{}{}:
		default:
		}
	}

	p.notifyState()
}

func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// ToggleLoop flips the loop flag; it takes effect on the next completion.
func (p *Player) ToggleLoop() bool {
	p.mu.Lock()
	p.loop = !p.loop
	enabled := p.loop
	p.mu.Unlock()

	p.notifyState()
	return enabled
}

// Shuffle reorders the pending queue atomically.
func (p *Player) Shuffle() {
	p.queue.Shuffle()
	p.notifyState()
}

// Leave disconnects the voice transport and clears all playback state.
func (p *Player) Leave() error {
	p.mu.Lock()
	if p.conn == nil {
		p.mu.Unlock()
		return ErrVoiceNotConnected
	}
	p.phase = PhaseTerminating
	p.mu.Unlock()

	p.queue.Clear()

	p.mu.Lock()
	p.replay = nil
	p.current = nil
	p.paused = false
	conn := p.conn
	p.conn = nil
	stopCh := p.stopCh
	p.mu.Unlock()

	select {
	case stopCh <- struct{}{}:
	default:
	}

	if err := conn.Disconnect(); err != nil {
		log.Printf("voice disconnect failed for guild %s: %v", p.guildID, err)
	}

	p.mu.Lock()
	p.phase = PhaseIdle
	p.position = 0
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	p.notifyState()
	return nil
}

// Snapshot returns a copy of the observable player state.
func (p *Player) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := Snapshot{
		Phase:    p.phase,
		Queue:    p.queue.List(),
		Volume:   p.volume,
		Loop:     p.loop,
		Position: p.position,
	}
	if p.current != nil {
		t := *p.current
		snap.Current = &t
	}
	return snap
}

func (p *Player) HasVoiceConnection() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil
}

func (p *Player) ensureWorker() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.running = true

	go p.runLoop(ctx)
}

func (p *Player) signalWake() {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
}

func (p *Player) notifyState() {
	if p.notifier != nil {
		p.notifier.StateChanged(p.guildID)
	}
}

// runLoop is the orchestrator: it pulls the next candidate, resolves
// playable audio, streams it, and re-enters itself on completion. It is the
// continuation for natural end, skip and error alike; Stop clears state so
// the loop finds nothing to continue with.
func (p *Player) runLoop(ctx context.Context) {
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		track, ok := p.nextTrack()
		if !ok {
			p.notifyState()
			select {
			case <-ctx.Done():
				return
			case <-p.wakeCh:
				continue
			}
		}

		src, err := p.resolveTrack(ctx, track)
		if err != nil {
			if errors.Is(err, ErrVoiceNotConnected) {
				log.Printf("guild %s: dropping queue, no voice connection", p.guildID)
				p.resetToIdle()
				continue
			}
			// Resolution failure never blocks the queue; advance to the
			// next candidate.
			log.Printf("guild %s: cannot play %q: %v", p.guildID, track.Title, err)
			p.clearCurrent()
			p.drainSignals()
			continue
		}

		err = p.streamSource(ctx, src)
		_ = src.Close()

		switch {
		case err == nil, errors.Is(err, ErrPlaybackSkipped):
			p.mu.Lock()
			if p.loop && p.current != nil {
				t := *p.current
				p.replay = &t
			}
			p.mu.Unlock()
		case errors.Is(err, ErrPlaybackStopped):
			// Stop/Leave already reset state; next iteration parks.
		case errors.Is(err, ErrVoiceTransport):
			log.Printf("guild %s: voice transport failed: %v", p.guildID, err)
			p.dropConnection()
		default:
			log.Printf("guild %s: playback error on %q: %v", p.guildID, track.Title, err)
			p.clearCurrent()
		}
	}
}

// nextTrack prefers a loop replay of the just-finished track, then the
// queue head. Returning false parks the worker in Idle.
func (p *Player) nextTrack() (Track, bool) {
	p.mu.Lock()
	if p.loop && p.replay != nil {
		t := *p.replay
		p.replay = nil
		p.mu.Unlock()
		return t, true
	}
	p.replay = nil
	p.mu.Unlock()

	if t, ok := p.queue.PopFront(); ok {
		return t, true
	}

	p.mu.Lock()
	p.current = nil
	p.phase = PhaseIdle
	p.position = 0
	p.mu.Unlock()
	p.drainSignals()
	return Track{}, false
}

// drainSignals discards buffered stop/skip tokens whose target track is
// already gone. A Stop during resolution leaves its token unconsumed when
// the resolution fails on its own; without the drain that token would kill
// the next track enqueued on the idle player.
func (p *Player) drainSignals() {
	select {
	case <-p.stopCh:
	default:
	}
	select {
	case <-p.skipCh:
	default:
	}
}

func (p *Player) resolveTrack(ctx context.Context, track Track) (Source, error) {
	p.mu.Lock()
	t := track
	p.current = &t
	p.phase = PhaseResolving
	p.position = 0
	volume := p.volume
	conn := p.conn
	p.mu.Unlock()
	p.notifyState()

	if conn == nil {
		return nil, ErrVoiceNotConnected
	}

	ref := MediaReference(track.SourceURL)
	if ref == "" {
		query := track.SearchQuery()
		if cached, ok := p.cache.Get(ctx, query); ok {
			ref = cached
		} else {
			located, ok := p.locator.LocateForPlayback(ctx, query)
			if !ok {
				return nil, fmt.Errorf("no playable media found for %q", query)
			}
			ref = located
			p.cache.Set(ctx, query, ref)
		}
	}

	src, err := p.factory.Open(ctx, ref, volume)
	if err != nil {
		return nil, err
	}
	return src, nil
}

func (p *Player) streamSource(ctx context.Context, src Source) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return ErrVoiceNotConnected
	}

	// A Stop issued while this track was resolving left a pending signal;
	// honor it before reporting the track as playing.
	select {
	case <-p.stopCh:
		return ErrPlaybackStopped
	case <-p.skipCh:
		return ErrPlaybackSkipped
	default:
	}

	p.mu.Lock()
	p.paused = false
	p.phase = PhasePlaying
	p.mu.Unlock()
	p.notifyState()

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	var frames int64
	sendTimeouts := 0
	speaking := false
	defer func() {
		_ = conn.Speaking(false)
	}()

	for {
		select {
		case <-ctx.Done():
			return ErrPlaybackStopped
		case <-p.stopCh:
			return ErrPlaybackStopped
		case <-p.skipCh:
			return ErrPlaybackSkipped
		case <-p.volCh:
			p.mu.Lock()
			vol := p.volume
			pos := p.position
			p.mu.Unlock()
			if err := src.Restart(ctx, pos, vol); err != nil {
				return fmt.Errorf("restart with new volume: %w", err)
			}
			continue
		default:
		}

		if p.isPaused() {
			if speaking {
				_ = conn.Speaking(false)
				speaking = false
			}
			select {
			case <-ctx.Done():
				return ErrPlaybackStopped
			case <-p.stopCh:
				return ErrPlaybackStopped
			case <-p.skipCh:
				return ErrPlaybackSkipped
			case <-time.After(pausePollInterval):
			}
			continue
		}

		pkt, err := src.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("audio stream error: %w", err)
		}

		if !speaking {
			_ = conn.Speaking(true)
			speaking = true
		}

		<-ticker.C

		select {
		case conn.OpusSend() <- pkt:
			frames++
			sendTimeouts = 0
			p.mu.Lock()
			p.position = time.Duration(frames) * frameDuration
			p.mu.Unlock()
		case <-ctx.Done():
			return ErrPlaybackStopped
		case <-p.stopCh:
			return ErrPlaybackStopped
		case <-p.skipCh:
			return ErrPlaybackSkipped
		case <-time.After(sendTimeout):
			sendTimeouts++
			log.Printf("guild %s: timeout sending opus frame %d", p.guildID, frames)
			if sendTimeouts >= maxSendTimeouts {
				return fmt.Errorf("%w: opus send stalled", ErrVoiceTransport)
			}
		}
	}
}

func (p *Player) isPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Player) clearCurrent() {
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()
	p.notifyState()
}

func (p *Player) resetToIdle() {
	p.queue.Clear()
	p.mu.Lock()
	p.replay = nil
	p.current = nil
	p.paused = false
	p.phase = PhaseIdle
	p.position = 0
	p.mu.Unlock()
	p.notifyState()
}

func (p *Player) dropConnection() {
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.mu.Unlock()

	if conn != nil {
		_ = conn.Disconnect()
	}
	p.resetToIdle()
}
