package music

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

const extractTimeout = 15 * time.Second

// ExtractionStrategy is one configuration tried while extracting a stream
// URL. Strategies are tried in order, each at most once.
type ExtractionStrategy struct {
	Name   string
	Format string
}

// defaultStrategies mirrors the preferred-then-looser cascade: an m4a
// selector first, the same selector again on a fresh invocation, a webm
// selector, then no format constraint at all.
var defaultStrategies = []ExtractionStrategy{
	{Name: "preferred", Format: "bestaudio[ext=m4a]/bestaudio/best"},
	{Name: "fresh-client", Format: "bestaudio[ext=m4a]/bestaudio/best"},
	{Name: "permissive", Format: "bestaudio[ext=webm]/bestaudio/best"},
	{Name: "unconstrained", Format: ""},
}

// Extractor turns a MediaReference into an audio stream URL via yt-dlp.
type Extractor struct {
	Binary     string
	Timeout    time.Duration
	Strategies []ExtractionStrategy

	run commandRunner
}

func NewExtractor() *Extractor {
	return &Extractor{
		Binary:     "yt-dlp",
		Timeout:    extractTimeout,
		Strategies: defaultStrategies,
		run:        execRunner,
	}
}

// StreamURL attempts each strategy once and returns the first stream URL
// obtained. Exhausting every stage returns an *ExtractionError carrying all
// stage failures.
func (e *Extractor) StreamURL(ctx context.Context, ref MediaReference) (string, error) {
	strategies := e.Strategies
	if len(strategies) == 0 {
		strategies = defaultStrategies
	}

	var failures []StageFailure
	for i, strategy := range strategies {
		streamURL, err := e.attempt(ctx, ref, strategy)
		if err == nil {
			if i > 0 {
				log.Printf("extraction for %s succeeded at stage %d (%s)", string(ref), i, strategy.Name)
			}
			return streamURL, nil
		}

		log.Printf("extraction stage %d (%s) failed for %s: %v", i, strategy.Name, string(ref), err)
		failures = append(failures, StageFailure{Stage: i, Strategy: strategy.Name, Err: err})

		if ctx.Err() != nil {
			break
		}
	}

	return "", &ExtractionError{Ref: ref, Stages: failures}
}

func (e *Extractor) attempt(ctx context.Context, ref MediaReference, strategy ExtractionStrategy) (string, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = extractTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{"--no-warnings", "--no-playlist", "-g"}
	if strategy.Format != "" {
		args = append(args, "-f", strategy.Format)
	}
	args = append(args, string(ref))

	run := e.run
	if run == nil {
		run = execRunner
	}

	output, err := run(ctx, e.Binary, args...)
	if err != nil {
		return "", fmt.Errorf("yt-dlp failed: %v: %s", err, strings.TrimSpace(string(output)))
	}

	// -g may print one URL per requested stream; the first is the audio.
	streamURL := strings.TrimSpace(string(output))
	if idx := strings.IndexByte(streamURL, '\n'); idx >= 0 {
		streamURL = strings.TrimSpace(streamURL[:idx])
	}
	if streamURL == "" {
		return "", fmt.Errorf("empty stream url")
	}

	return streamURL, nil
}
