package music

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

type fakeLocator struct {
	mu    sync.Mutex
	refs  map[string]MediaReference
	calls []string
}

func (l *fakeLocator) LocateForPlayback(_ context.Context, query string) (MediaReference, bool) {
	l.mu.Lock()
	l.calls = append(l.calls, query)
	ref, ok := l.refs[query]
	l.mu.Unlock()
	return ref, ok
}

func (l *fakeLocator) Search(_ context.Context, input string) (Track, bool) {
	l.mu.Lock()
	ref, ok := l.refs[input]
	l.mu.Unlock()
	if !ok {
		return Track{}, false
	}
	return Track{SourceURL: string(ref), Title: input}, true
}

func (l *fakeLocator) locateCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

type restartCall struct {
	at     time.Duration
	volume float64
}

type fakeSource struct {
	mu       sync.Mutex
	packets  int
	restarts []restartCall
	closed   bool
}

func (s *fakeSource) ReadPacket() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.packets <= 0 {
		return nil, io.EOF
	}
	s.packets--
	return []byte{0xf8, 0xff, 0xfe}, nil
}

func (s *fakeSource) Restart(_ context.Context, at time.Duration, volume float64) error {
	s.mu.Lock()
	s.restarts = append(s.restarts, restartCall{at: at, volume: volume})
	s.mu.Unlock()
	return nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSource) restartCalls() []restartCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]restartCall, len(s.restarts))
	copy(out, s.restarts)
	return out
}

type openCall struct {
	ref    MediaReference
	volume float64
}

type fakeFactory struct {
	mu      sync.Mutex
	packets map[MediaReference]int
	fail    map[MediaReference]bool
	opens   []openCall
	sources []*fakeSource
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		packets: make(map[MediaReference]int),
		fail:    make(map[MediaReference]bool),
	}
}

func (f *fakeFactory) Open(_ context.Context, ref MediaReference, volume float64) (Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.opens = append(f.opens, openCall{ref: ref, volume: volume})
	if f.fail[ref] {
		return nil, errors.New("open failed")
	}

	n := f.packets[ref]
	if n == 0 {
		n = 2
	}
	src := &fakeSource{packets: n}
	f.sources = append(f.sources, src)
	return src, nil
}

func (f *fakeFactory) openCalls() []openCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]openCall, len(f.opens))
	copy(out, f.opens)
	return out
}

func (f *fakeFactory) sourceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sources)
}

func (f *fakeFactory) lastSource() *fakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sources) == 0 {
		return nil
	}
	return f.sources[len(f.sources)-1]
}

type fakeConn struct {
	channelID string
	opus      chan []byte

	mu           sync.Mutex
	disconnected bool
}

func (c *fakeConn) ChannelID() string       { return c.channelID }
func (c *fakeConn) Speaking(bool) error     { return nil }
func (c *fakeConn) OpusSend() chan<- []byte { return c.opus }

func (c *fakeConn) Disconnect() error {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) isDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

type fakeDialer struct {
	mu    sync.Mutex
	conns map[string]*fakeConn
	joins int
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(map[string]*fakeConn)}
}

func (d *fakeDialer) Join(guildID, channelID string) (VoiceConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.joins++
	conn := &fakeConn{channelID: channelID, opus: make(chan []byte, 4096)}
	d.conns[guildID] = conn
	return conn, nil
}

func (d *fakeDialer) conn(guildID string) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[guildID]
}

func (d *fakeDialer) joinCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.joins
}

func newTestManager() (*PlayerManager, *fakeLocator, *fakeFactory, *fakeDialer) {
	loc := &fakeLocator{refs: make(map[string]MediaReference)}
	fac := newFakeFactory()
	dial := newFakeDialer()
	m := NewPlayerManager(Deps{
		Locator:       loc,
		Factory:       fac,
		Cache:         NewMediaCache(nil),
		Dialer:        dial,
		DefaultVolume: 0.5,
		MaxQueueSize:  50,
	})
	return m, loc, fac, dial
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func urlTrack(name string) Track {
	return Track{SourceURL: "https://media.example/" + name, Title: name}
}

func TestPlaybackFollowsEnqueueOrder(t *testing.T) {
	m, _, fac, _ := newTestManager()
	p := m.Get("g1")
	if err := p.Join("vc1"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	for _, name := range []string{"a", "b", "c"} {
		if err := p.Enqueue(urlTrack(name)); err != nil {
			t.Fatalf("Enqueue %s: %v", name, err)
		}
	}

	waitFor(t, 5*time.Second, func() bool {
		return len(fac.openCalls()) == 3 && p.Snapshot().Phase == PhaseIdle
	})

	opens := fac.openCalls()
	want := []MediaReference{"https://media.example/a", "https://media.example/b", "https://media.example/c"}
	for i, w := range want {
		if opens[i].ref != w {
			t.Errorf("open %d: got %s, want %s", i, opens[i].ref, w)
		}
	}
}

func TestCurrentTrackSetOnlyWhilePlayingOrPaused(t *testing.T) {
	m, _, fac, _ := newTestManager()
	p := m.Get("g1")
	if err := p.Join("vc1"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	fac.packets["https://media.example/a"] = 10000
	if err := p.Enqueue(urlTrack("a")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool { return p.Snapshot().Phase == PhasePlaying })
	if snap := p.Snapshot(); snap.Current == nil || snap.Current.Title != "a" {
		t.Fatalf("expected current track while playing, got %+v", snap.Current)
	}

	if err := p.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if snap := p.Snapshot(); snap.Phase != PhasePaused || snap.Current == nil {
		t.Fatalf("expected current track while paused, got phase=%s current=%+v", snap.Phase, snap.Current)
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool { return p.Snapshot().Phase == PhaseIdle })
	if snap := p.Snapshot(); snap.Current != nil {
		t.Fatalf("expected no current track when idle, got %+v", snap.Current)
	}
}

func TestFailedTrackDoesNotBlockNext(t *testing.T) {
	m, _, fac, _ := newTestManager()
	p := m.Get("g1")
	if err := p.Join("vc1"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	fac.fail["https://media.example/bad"] = true
	if err := p.Enqueue(urlTrack("bad")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := p.Enqueue(urlTrack("good")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		return len(fac.openCalls()) == 2 && p.Snapshot().Phase == PhaseIdle
	})

	opens := fac.openCalls()
	if opens[0].ref != "https://media.example/bad" || opens[1].ref != "https://media.example/good" {
		t.Fatalf("unexpected open order: %+v", opens)
	}
	if got := fac.sourceCount(); got != 1 {
		t.Fatalf("expected exactly one playable source, got %d", got)
	}
}

func TestLoopReplaysCurrentTrack(t *testing.T) {
	m, _, fac, _ := newTestManager()
	p := m.Get("g1")
	if err := p.Join("vc1"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	fac.packets["https://media.example/a"] = 1
	if !p.ToggleLoop() {
		t.Fatal("expected loop enabled after toggle")
	}
	if err := p.Enqueue(urlTrack("a")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// First play plus at least five replays.
	waitFor(t, 10*time.Second, func() bool { return len(fac.openCalls()) >= 6 })

	if got := p.Snapshot().Queue; len(got) != 0 {
		t.Fatalf("queue should stay empty under loop, got %d entries", len(got))
	}
	for i, call := range fac.openCalls() {
		if call.ref != "https://media.example/a" {
			t.Fatalf("replay %d used wrong reference %s", i, call.ref)
		}
	}

	if p.ToggleLoop() {
		t.Fatal("expected loop disabled after second toggle")
	}
	waitFor(t, 5*time.Second, func() bool { return p.Snapshot().Phase == PhaseIdle })
}

func TestStopClearsQueueAndSkipAdvances(t *testing.T) {
	t.Run("stop", func(t *testing.T) {
		m, _, fac, dial := newTestManager()
		p := m.Get("g1")
		if err := p.Join("vc1"); err != nil {
			t.Fatalf("Join: %v", err)
		}

		fac.packets["https://media.example/a"] = 10000
		if err := p.Enqueue(urlTrack("a")); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		if err := p.Enqueue(urlTrack("b")); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}

		waitFor(t, 5*time.Second, func() bool { return p.Snapshot().Phase == PhasePlaying })
		if err := p.Stop(); err != nil {
			t.Fatalf("Stop: %v", err)
		}
		waitFor(t, 5*time.Second, func() bool { return p.Snapshot().Phase == PhaseIdle })

		snap := p.Snapshot()
		if len(snap.Queue) != 0 || snap.Current != nil {
			t.Fatalf("expected cleared state, got queue=%d current=%+v", len(snap.Queue), snap.Current)
		}
		if len(fac.openCalls()) != 1 {
			t.Fatalf("stop must not start the next track, opens=%d", len(fac.openCalls()))
		}
		if dial.conn("g1").isDisconnected() {
			t.Fatal("stop must keep the voice connection")
		}
	})

	t.Run("skip", func(t *testing.T) {
		m, _, fac, _ := newTestManager()
		p := m.Get("g1")
		if err := p.Join("vc1"); err != nil {
			t.Fatalf("Join: %v", err)
		}

		fac.packets["https://media.example/a"] = 10000
		if err := p.Enqueue(urlTrack("a")); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		if err := p.Enqueue(urlTrack("b")); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}

		waitFor(t, 5*time.Second, func() bool { return p.Snapshot().Phase == PhasePlaying })
		if err := p.Skip(); err != nil {
			t.Fatalf("Skip: %v", err)
		}

		waitFor(t, 5*time.Second, func() bool { return len(fac.openCalls()) == 2 })
		if fac.openCalls()[1].ref != "https://media.example/b" {
			t.Fatalf("skip should start next track, got %s", fac.openCalls()[1].ref)
		}
	})
}

func TestVolumePersistsAcrossTracks(t *testing.T) {
	m, _, fac, _ := newTestManager()
	p := m.Get("g1")
	if err := p.Join("vc1"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	p.SetVolume(0.25)
	if err := p.Enqueue(urlTrack("a")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := p.Enqueue(urlTrack("b")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		return len(fac.openCalls()) == 2 && p.Snapshot().Phase == PhaseIdle
	})

	for i, call := range fac.openCalls() {
		if call.volume != 0.25 {
			t.Errorf("track %d started at volume %v, want 0.25", i, call.volume)
		}
	}
}

func TestVolumeChangeAppliesToActiveSource(t *testing.T) {
	m, _, fac, _ := newTestManager()
	p := m.Get("g1")
	if err := p.Join("vc1"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	fac.packets["https://media.example/a"] = 10000
	if err := p.Enqueue(urlTrack("a")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool { return p.Snapshot().Phase == PhasePlaying })
	p.SetVolume(0.8)

	waitFor(t, 5*time.Second, func() bool {
		src := fac.lastSource()
		return src != nil && len(src.restartCalls()) == 1
	})
	if got := fac.lastSource().restartCalls()[0].volume; got != 0.8 {
		t.Fatalf("restart volume = %v, want 0.8", got)
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestVolumeClamped(t *testing.T) {
	m, _, _, _ := newTestManager()
	p := m.Get("g1")

	p.SetVolume(1.7)
	if got := p.Volume(); got != 1.0 {
		t.Errorf("volume = %v, want 1.0", got)
	}
	p.SetVolume(-0.2)
	if got := p.Volume(); got != 0 {
		t.Errorf("volume = %v, want 0", got)
	}
}

func TestGuildsAreIndependent(t *testing.T) {
	m, _, fac, _ := newTestManager()

	p2 := m.Get("g2")
	if err := p2.Join("vc2"); err != nil {
		t.Fatalf("Join g2: %v", err)
	}
	fac.packets["https://media.example/steady"] = 100000
	if err := p2.Enqueue(urlTrack("steady")); err != nil {
		t.Fatalf("Enqueue g2: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool { return p2.Snapshot().Phase == PhasePlaying })

	p1 := m.Get("g1")
	if err := p1.Join("vc1"); err != nil {
		t.Fatalf("Join g1: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p1.Enqueue(urlTrack("noise"))
			_ = p1.Skip()
			_ = p1.Stop()
		}()
	}
	wg.Wait()
	_ = p1.Stop()

	snap := p2.Snapshot()
	if snap.Phase != PhasePlaying || snap.Current == nil || snap.Current.Title != "steady" {
		t.Fatalf("guild g2 disturbed: phase=%s current=%+v", snap.Phase, snap.Current)
	}

	if err := p2.Stop(); err != nil {
		t.Fatalf("Stop g2: %v", err)
	}
}

func TestResolutionExhaustionEndsIdle(t *testing.T) {
	m, loc, fac, _ := newTestManager()
	p := m.Get("g1")
	if err := p.Join("vc1"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	// No SourceURL and no locator hits: every resolution fails.
	for _, name := range []string{"x", "y", "z"} {
		if err := p.Enqueue(Track{Title: name}); err != nil {
			t.Fatalf("Enqueue %s: %v", name, err)
		}
	}

	waitFor(t, 5*time.Second, func() bool {
		return p.Snapshot().Phase == PhaseIdle && loc.locateCount() == 3
	})

	// One attempt per queued track, nothing more.
	time.Sleep(100 * time.Millisecond)
	if got := loc.locateCount(); got != 3 {
		t.Fatalf("locate attempts = %d, want 3", got)
	}
	if len(fac.openCalls()) != 0 {
		t.Fatalf("no source should have been opened, got %d", len(fac.openCalls()))
	}
	if got := p.Snapshot().Queue; len(got) != 0 {
		t.Fatalf("queue should be drained, got %d entries", len(got))
	}
}

func TestSkipAndPauseRequireActivePlayback(t *testing.T) {
	m, _, _, _ := newTestManager()
	p := m.Get("g1")

	if err := p.Skip(); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("Skip on idle = %v, want ErrInvalidOperation", err)
	}
	if err := p.Pause(); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("Pause on idle = %v, want ErrInvalidOperation", err)
	}
	if err := p.Resume(); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("Resume on idle = %v, want ErrInvalidOperation", err)
	}
}

func TestJoinSameChannelIsIdempotent(t *testing.T) {
	m, _, _, dial := newTestManager()
	p := m.Get("g1")

	if err := p.Join("vc1"); err != nil {
		t.Fatalf("first Join: %v", err)
	}
	if err := p.Join("vc1"); err != nil {
		t.Fatalf("second Join: %v", err)
	}
	if got := dial.joinCount(); got != 1 {
		t.Errorf("dialer joins = %d, want 1", got)
	}

	if err := p.Join("vc2"); err != nil {
		t.Fatalf("Join other channel: %v", err)
	}
	if got := dial.joinCount(); got != 2 {
		t.Errorf("dialer joins after move = %d, want 2", got)
	}

	if err := p.Join(""); !errors.Is(err, ErrNoVoiceChannel) {
		t.Errorf("Join empty channel = %v, want ErrNoVoiceChannel", err)
	}
}

func TestLeaveDisconnectsAndClears(t *testing.T) {
	m, _, fac, dial := newTestManager()
	p := m.Get("g1")
	if err := p.Join("vc1"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	fac.packets["https://media.example/a"] = 10000
	if err := p.Enqueue(urlTrack("a")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := p.Enqueue(urlTrack("b")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool { return p.Snapshot().Phase == PhasePlaying })

	if err := p.Leave(); err != nil {
		t.Fatalf("Leave: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool { return p.Snapshot().Phase == PhaseIdle })
	snap := p.Snapshot()
	if len(snap.Queue) != 0 || snap.Current != nil {
		t.Fatalf("expected cleared state, got queue=%d current=%+v", len(snap.Queue), snap.Current)
	}
	if !dial.conn("g1").isDisconnected() {
		t.Fatal("expected voice connection to be disconnected")
	}

	if err := p.Leave(); !errors.Is(err, ErrVoiceNotConnected) {
		t.Errorf("second Leave = %v, want ErrVoiceNotConnected", err)
	}
}

func TestPauseStopsPacketFlow(t *testing.T) {
	m, _, fac, dial := newTestManager()
	p := m.Get("g1")
	if err := p.Join("vc1"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	fac.packets["https://media.example/a"] = 100000
	if err := p.Enqueue(urlTrack("a")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool { return p.Snapshot().Phase == PhasePlaying })

	if err := p.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	// Let any in-flight frame land, then verify the flow stalls.
	time.Sleep(150 * time.Millisecond)
	before := len(dial.conn("g1").opus)
	time.Sleep(200 * time.Millisecond)
	after := len(dial.conn("g1").opus)
	if after != before {
		t.Fatalf("packets still flowing while paused: %d -> %d", before, after)
	}

	if err := p.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool { return len(dial.conn("g1").opus) > after })

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

// gatedLocator parks every lookup until the gate opens, then reports the
// media as not found.
type gatedLocator struct {
	gate    chan struct{}
	started chan struct{}
}

func (l *gatedLocator) LocateForPlayback(_ context.Context, _ string) (MediaReference, bool) {
	select {
	case l.started <- struct{}{}:
	default:
	}
	<-l.gate
	return "", false
}

func (l *gatedLocator) Search(context.Context, string) (Track, bool) {
	return Track{}, false
}

func TestStopDuringFailedResolutionDoesNotAffectNextTrack(t *testing.T) {
	loc := &gatedLocator{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	fac := newFakeFactory()
	m := NewPlayerManager(Deps{
		Locator:       loc,
		Factory:       fac,
		Cache:         NewMediaCache(nil),
		Dialer:        newFakeDialer(),
		DefaultVolume: 0.5,
		MaxQueueSize:  50,
	})
	p := m.Get("g1")
	if err := p.Join("vc1"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	if err := p.Enqueue(Track{Title: "missing"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	select {
	case <-loc.started:
	case <-time.After(5 * time.Second):
		t.Fatal("resolution never started")
	}

	// Stop while the lookup is still in flight, then let the lookup fail on
	// its own so nothing consumes the stop signal.
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	close(loc.gate)

	waitFor(t, 5*time.Second, func() bool { return p.Snapshot().Phase == PhaseIdle })

	// A track enqueued on the now idle player must start normally; the stop
	// belonged to the track that already failed.
	next := urlTrack("after-stop")
	fac.packets[MediaReference(next.SourceURL)] = 100000
	if err := p.Enqueue(next); err != nil {
		t.Fatalf("Enqueue after stop: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		snap := p.Snapshot()
		return snap.Phase == PhasePlaying && snap.Current != nil && snap.Current.Title == "after-stop"
	})

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
