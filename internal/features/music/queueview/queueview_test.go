package queueview

import (
	"fmt"
	"testing"
	"time"

	"github.com/hykim/melobot/internal/music"
)

func snapshotWithTracks(n int) music.Snapshot {
	snap := music.Snapshot{Phase: music.PhasePlaying}
	for i := 0; i < n; i++ {
		snap.Queue = append(snap.Queue, music.Track{
			Title:    fmt.Sprintf("track-%d", i+1),
			Duration: 3 * time.Minute,
		})
	}
	return snap
}

func TestBuildQueueComponentsPaging(t *testing.T) {
	tests := []struct {
		name       string
		total      int
		page       int
		perPage    int
		wantPage   int
		wantPages  int
		wantStart  int
		wantEnd    int
	}{
		{"first page", 25, 1, 10, 1, 3, 0, 10},
		{"middle page", 25, 2, 10, 2, 3, 10, 20},
		{"last partial page", 25, 3, 10, 3, 3, 20, 25},
		{"page clamped high", 25, 99, 10, 3, 3, 20, 25},
		{"page clamped low", 25, 0, 10, 1, 3, 0, 10},
		{"empty queue", 0, 1, 10, 1, 1, 0, 0},
		{"per page clamped", 30, 1, 100, 1, 2, 0, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, info := BuildQueueComponents(snapshotWithTracks(tt.total), tt.page, tt.perPage)
			if info.Page != tt.wantPage {
				t.Errorf("Page = %d, want %d", info.Page, tt.wantPage)
			}
			if info.TotalPages != tt.wantPages {
				t.Errorf("TotalPages = %d, want %d", info.TotalPages, tt.wantPages)
			}
			if info.StartIndex != tt.wantStart || info.EndIndex != tt.wantEnd {
				t.Errorf("range = [%d,%d), want [%d,%d)", info.StartIndex, info.EndIndex, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestQueuePageCustomIDRoundTrip(t *testing.T) {
	id := MakeQueuePageCustomID(3, 10)
	page, perPage, ok := ParseQueuePageCustomID(id)
	if !ok {
		t.Fatalf("ParseQueuePageCustomID(%q) not ok", id)
	}
	if page != 3 || perPage != 10 {
		t.Fatalf("got page=%d perPage=%d, want 3/10", page, perPage)
	}
}

func TestParseQueuePageCustomIDRejectsForeignIDs(t *testing.T) {
	for _, id := range []string{"card_queue", "queue_page:x:10", "queue_page:1", ""} {
		if _, _, ok := ParseQueuePageCustomID(id); ok {
			t.Errorf("ParseQueuePageCustomID(%q) = ok, want rejection", id)
		}
	}
}

func TestTrackLineFormatting(t *testing.T) {
	withURL := music.Track{Title: "Song", Artist: "Artist", SourceURL: "https://x/y", Duration: 215 * time.Second}
	if got := trackLine(1, withURL); got != "1. [Artist - Song](https://x/y) · 3:35" {
		t.Errorf("trackLine = %q", got)
	}

	noURL := music.Track{Title: "Song", Duration: 0}
	if got := trackLine(2, noURL); got != "2. Song · live" {
		t.Errorf("trackLine = %q", got)
	}
}
