package music

import (
	"context"
	"log"
	"strings"
)

// Service turns raw user input into queued tracks. Every entry point
// (slash command, prefix command, player card) builds a PlaybackRequest
// and calls the same methods here.
type Service struct {
	manager  *PlayerManager
	metadata MetadataResolver
	locator  Locator
}

func NewService(manager *PlayerManager, metadata MetadataResolver, locator Locator) *Service {
	return &Service{
		manager:  manager,
		metadata: metadata,
		locator:  locator,
	}
}

func (s *Service) Manager() *PlayerManager { return s.manager }

// ResolveTrack maps user input to a Track. URLs skip metadata lookup and
// go straight to the locator for title and duration; free text goes
// through the metadata resolver first and falls back to a direct search.
func (s *Service) ResolveTrack(ctx context.Context, input, requester string) (Track, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Track{}, ErrMissingInput
	}

	if looksLikeURL(input) {
		if t, ok := s.locator.Search(ctx, input); ok {
			t.RequestedBy = requester
			return t, nil
		}
		// Metadata probe failed; keep the URL and let extraction decide
		// at play time whether it is usable.
		log.Printf("metadata probe failed for %s, queuing as-is", input)
		return Track{SourceURL: input, Title: input, RequestedBy: requester}, nil
	}

	if s.metadata != nil {
		if meta, ok := s.metadata.Resolve(ctx, input); ok {
			return Track{
				Title:       meta.Title,
				Artist:      meta.Artist,
				Duration:    meta.Duration,
				Thumbnail:   meta.Thumbnail,
				RequestedBy: requester,
			}, nil
		}
	}

	if t, ok := s.locator.Search(ctx, input); ok {
		t.RequestedBy = requester
		return t, nil
	}
	return Track{}, ErrNothingFound
}

// Play resolves the input, joins the requester's voice channel and
// enqueues the result. The returned track is what was queued.
func (s *Service) Play(ctx context.Context, req PlaybackRequest, input string) (Track, error) {
	channelID := req.VoiceChannelID()
	if channelID == "" {
		return Track{}, ErrNoVoiceChannel
	}

	track, err := s.ResolveTrack(ctx, input, req.DisplayName())
	if err != nil {
		return Track{}, err
	}

	p := s.manager.Get(req.GuildID())
	if err := p.Join(channelID); err != nil {
		return Track{}, err
	}
	if err := p.Enqueue(track); err != nil {
		return Track{}, err
	}
	return track, nil
}
