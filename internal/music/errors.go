package music

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoVoiceChannel    = errors.New("user is not in a voice channel")
	ErrVoiceNotConnected = errors.New("voice connection not established")
	ErrInvalidOperation  = errors.New("operation not valid in current state")
	ErrQueueFull         = errors.New("queue is full")
	ErrMissingInput      = errors.New("no track or search query given")
	ErrNothingFound      = errors.New("no results for query")

	ErrPlaybackStopped = errors.New("playback stopped")
	ErrPlaybackSkipped = errors.New("playback skipped")

	ErrVoiceTransport = errors.New("voice transport failed")
)

// StageFailure records one failed extraction attempt.
type StageFailure struct {
	Stage    int
	Strategy string
	Err      error
}

// ExtractionError means every extraction strategy was tried once and all
// failed. The orchestrator treats it as "this track cannot be played".
type ExtractionError struct {
	Ref    MediaReference
	Stages []StageFailure
}

func (e *ExtractionError) Error() string {
	parts := make([]string, 0, len(e.Stages))
	for _, s := range e.Stages {
		parts = append(parts, fmt.Sprintf("stage %d (%s): %v", s.Stage, s.Strategy, s.Err))
	}
	return fmt.Sprintf("extraction failed for %s: %s", string(e.Ref), strings.Join(parts, "; "))
}
