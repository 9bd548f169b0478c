package music

import "time"

// MediaReference is an opaque locator for a specific playable stream,
// distinct from the free-text query that produced it.
type MediaReference string

// Track is one queued or playing song. Values are immutable once enqueued;
// SourceURL may be empty and is resolved lazily at play time.
type Track struct {
	SourceURL   string        `json:"source_url,omitempty"`
	Title       string        `json:"title"`
	Artist      string        `json:"artist"`
	Duration    time.Duration `json:"duration"`
	Thumbnail   string        `json:"thumbnail,omitempty"`
	RequestedBy string        `json:"requested_by"`
}

// SearchQuery builds the free-text query used to locate playable audio for
// a track that was enqueued from catalog metadata alone.
func (t Track) SearchQuery() string {
	if t.Artist == "" {
		return t.Title
	}
	return t.Title + " " + t.Artist
}

// Phase is the playback phase of one guild's player.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseResolving   Phase = "resolving"
	PhasePlaying     Phase = "playing"
	PhasePaused      Phase = "paused"
	PhaseTerminating Phase = "terminating"
)

// Snapshot is a read-only view of one guild's player state.
type Snapshot struct {
	Phase    Phase         `json:"phase"`
	Current  *Track        `json:"current,omitempty"`
	Queue    []Track       `json:"queue"`
	Volume   float64       `json:"volume"`
	Loop     bool          `json:"loop"`
	Position time.Duration `json:"position"`
}

// TrackMeta is what the metadata catalog knows about a track. It never
// carries a playable reference; audio is located separately.
type TrackMeta struct {
	Title     string
	Artist    string
	Duration  time.Duration
	Thumbnail string
}
