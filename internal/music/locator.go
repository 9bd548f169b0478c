package music

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"
)

var ErrLocateFailed = errors.New("failed to locate playable media")

const locateTimeout = 15 * time.Second

// Locator finds playable media for a track.
type Locator interface {
	// LocateForPlayback returns the canonical watch URL for the first
	// search hit, or false if nothing was found or the search failed.
	// Platform URLs pass through unchanged.
	LocateForPlayback(ctx context.Context, query string) (MediaReference, bool)

	// Search resolves a free-text query or direct URL into display
	// metadata plus a playable reference, first hit only.
	Search(ctx context.Context, input string) (Track, bool)
}

// commandRunner executes an external tool and returns its combined output.
// Swappable in tests.
type commandRunner func(ctx context.Context, binary string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Env = os.Environ()
	return cmd.CombinedOutput()
}

// YTDLPLocator shells out to yt-dlp restricted to the first result in
// skip-download mode.
type YTDLPLocator struct {
	Binary  string
	Timeout time.Duration

	run commandRunner
}

func NewYTDLPLocator() *YTDLPLocator {
	return &YTDLPLocator{
		Binary:  "yt-dlp",
		Timeout: locateTimeout,
		run:     execRunner,
	}
}

func (l *YTDLPLocator) LocateForPlayback(ctx context.Context, query string) (MediaReference, bool) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", false
	}

	if looksLikeURL(query) {
		return MediaReference(query), true
	}

	item, err := l.fetchFirst(ctx, "ytsearch1:"+query)
	if err != nil {
		log.Printf("locate failed for %q: %v", query, err)
		return "", false
	}

	link := item.WebpageURL
	if link == "" {
		link = item.URL
	}
	if link == "" {
		log.Printf("locate failed for %q: no usable entry", query)
		return "", false
	}

	return MediaReference(link), true
}

func (l *YTDLPLocator) Search(ctx context.Context, input string) (Track, bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Track{}, false
	}

	target := input
	if !looksLikeURL(target) {
		target = "ytsearch1:" + target
	}

	item, err := l.fetchFirst(ctx, target)
	if err != nil {
		log.Printf("search failed for %q: %v", input, err)
		return Track{}, false
	}

	link := item.WebpageURL
	if link == "" {
		link = item.URL
	}
	if link == "" {
		return Track{}, false
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = "Unknown Title"
	}

	duration := time.Duration(item.Duration * float64(time.Second))
	if duration < 0 {
		duration = 0
	}

	return Track{
		SourceURL: link,
		Title:     title,
		Artist:    item.Uploader,
		Duration:  duration,
		Thumbnail: item.Thumbnail,
	}, true
}

func (l *YTDLPLocator) fetchFirst(ctx context.Context, target string) (ytDLPItem, error) {
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = locateTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{
		"--no-warnings",
		"--dump-single-json",
		"--skip-download",
		"--no-playlist",
		target,
	}

	run := l.run
	if run == nil {
		run = execRunner
	}

	output, err := run(ctx, l.Binary, args...)
	if err != nil {
		return ytDLPItem{}, fmt.Errorf("%w: yt-dlp failed: %v: %s", ErrLocateFailed, err, strings.TrimSpace(string(output)))
	}

	var root ytDLPItem
	if err := json.Unmarshal(output, &root); err != nil {
		return ytDLPItem{}, fmt.Errorf("%w: invalid json: %v", ErrLocateFailed, err)
	}

	return pickYTDLPItem(root)
}

type ytDLPItem struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	WebpageURL string      `json:"webpage_url"`
	URL        string      `json:"url"`
	Duration   float64     `json:"duration"`
	Thumbnail  string      `json:"thumbnail"`
	Uploader   string      `json:"uploader"`
	Entries    []ytDLPItem `json:"entries"`
}

func pickYTDLPItem(root ytDLPItem) (ytDLPItem, error) {
	if len(root.Entries) == 0 {
		return root, nil
	}

	for _, entry := range root.Entries {
		if entry.WebpageURL != "" || entry.URL != "" || entry.Title != "" {
			return entry, nil
		}
	}

	return ytDLPItem{}, fmt.Errorf("%w: no usable entries", ErrLocateFailed)
}

func looksLikeURL(value string) bool {
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		return true
	}

	u, err := url.Parse(value)
	return err == nil && u.Scheme != "" && u.Host != ""
}
