package music

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeMetadata struct {
	hits map[string]TrackMeta
}

func (m *fakeMetadata) Resolve(_ context.Context, query string) (TrackMeta, bool) {
	meta, ok := m.hits[query]
	return meta, ok
}

type fakeRequest struct {
	actorID   string
	name      string
	guildID   string
	channelID string

	mu      sync.Mutex
	replies []string
}

func (r *fakeRequest) ActorID() string        { return r.actorID }
func (r *fakeRequest) DisplayName() string    { return r.name }
func (r *fakeRequest) GuildID() string        { return r.guildID }
func (r *fakeRequest) VoiceChannelID() string { return r.channelID }

func (r *fakeRequest) Reply(content string) {
	r.mu.Lock()
	r.replies = append(r.replies, content)
	r.mu.Unlock()
}

func newTestService() (*Service, *fakeLocator, *fakeFactory, *fakeMetadata) {
	m, loc, fac, _ := newTestManager()
	meta := &fakeMetadata{hits: make(map[string]TrackMeta)}
	return NewService(m, meta, loc), loc, fac, meta
}

func TestResolveTrackPrefersCatalogForFreeText(t *testing.T) {
	svc, _, _, meta := newTestService()
	meta.hits["daft punk harder"] = TrackMeta{
		Title:    "Harder, Better, Faster, Stronger",
		Artist:   "Daft Punk",
		Duration: 225 * time.Second,
	}

	track, err := svc.ResolveTrack(context.Background(), "daft punk harder", "tester")
	if err != nil {
		t.Fatalf("ResolveTrack: %v", err)
	}
	if track.Title != "Harder, Better, Faster, Stronger" {
		t.Errorf("title = %q", track.Title)
	}
	if track.SourceURL != "" {
		t.Errorf("catalog hit must leave SourceURL empty for lazy location, got %q", track.SourceURL)
	}
	if track.RequestedBy != "tester" {
		t.Errorf("requested by = %q", track.RequestedBy)
	}
}

func TestResolveTrackFallsBackToSearch(t *testing.T) {
	svc, loc, _, _ := newTestService()
	loc.refs["obscure live set"] = "https://media.example/watch?v=live"

	track, err := svc.ResolveTrack(context.Background(), "obscure live set", "tester")
	if err != nil {
		t.Fatalf("ResolveTrack: %v", err)
	}
	if track.SourceURL != "https://media.example/watch?v=live" {
		t.Errorf("source url = %q", track.SourceURL)
	}
}

func TestResolveTrackURLSkipsCatalog(t *testing.T) {
	svc, loc, _, meta := newTestService()
	meta.hits["https://media.example/watch?v=abc"] = TrackMeta{Title: "should not be used"}
	loc.refs["https://media.example/watch?v=abc"] = "https://media.example/watch?v=abc"

	track, err := svc.ResolveTrack(context.Background(), "https://media.example/watch?v=abc", "tester")
	if err != nil {
		t.Fatalf("ResolveTrack: %v", err)
	}
	if track.Title == "should not be used" {
		t.Error("URL input must bypass the metadata catalog")
	}
	if track.SourceURL != "https://media.example/watch?v=abc" {
		t.Errorf("source url = %q", track.SourceURL)
	}
}

func TestResolveTrackURLKeptWhenProbeFails(t *testing.T) {
	svc, _, _, _ := newTestService()

	track, err := svc.ResolveTrack(context.Background(), "https://media.example/watch?v=zzz", "tester")
	if err != nil {
		t.Fatalf("ResolveTrack: %v", err)
	}
	if track.SourceURL != "https://media.example/watch?v=zzz" {
		t.Errorf("source url = %q, URL input must be queued even when the probe fails", track.SourceURL)
	}
}

func TestResolveTrackErrors(t *testing.T) {
	svc, _, _, _ := newTestService()

	if _, err := svc.ResolveTrack(context.Background(), "   ", "t"); !errors.Is(err, ErrMissingInput) {
		t.Errorf("blank input = %v, want ErrMissingInput", err)
	}
	if _, err := svc.ResolveTrack(context.Background(), "nothing anywhere", "t"); !errors.Is(err, ErrNothingFound) {
		t.Errorf("total miss = %v, want ErrNothingFound", err)
	}
}

func TestPlayJoinsAndEnqueues(t *testing.T) {
	svc, loc, fac, _ := newTestService()
	loc.refs["some song"] = "https://media.example/watch?v=abc"

	req := &fakeRequest{actorID: "u1", name: "tester", guildID: "g1", channelID: "vc1"}
	track, err := svc.Play(context.Background(), req, "some song")
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	if track.SourceURL != "https://media.example/watch?v=abc" {
		t.Errorf("queued track url = %q", track.SourceURL)
	}

	p := svc.Manager().Get("g1")
	waitFor(t, 5*time.Second, func() bool {
		return len(fac.openCalls()) == 1 && p.Snapshot().Phase == PhaseIdle
	})
	if !p.HasVoiceConnection() {
		t.Error("Play should have joined the requester's voice channel")
	}
}

func TestPlayRequiresVoiceChannel(t *testing.T) {
	svc, loc, _, _ := newTestService()
	loc.refs["some song"] = "https://media.example/watch?v=abc"

	req := &fakeRequest{actorID: "u1", name: "tester", guildID: "g1", channelID: ""}
	if _, err := svc.Play(context.Background(), req, "some song"); !errors.Is(err, ErrNoVoiceChannel) {
		t.Fatalf("Play without voice = %v, want ErrNoVoiceChannel", err)
	}
}
