package music

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

var errSpotifyLookup = errors.New("spotify lookup failed")

// MetadataResolver looks a free-text query up in a music catalog. The
// boolean result is the whole contract: transport and service errors are
// logged and reported as "not found", never propagated.
type MetadataResolver interface {
	Resolve(ctx context.Context, query string) (TrackMeta, bool)
}

// SpotifyClient resolves track metadata against the Spotify catalog using
// the client-credentials flow. One search per call, first result only.
type SpotifyClient struct {
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
	APIBase      string
	TokenURL     string

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

func NewSpotifyClient(clientID, clientSecret string) *SpotifyClient {
	return &SpotifyClient{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		HTTPClient:   &http.Client{Timeout: 10 * time.Second},
		APIBase:      "https://api.spotify.com",
		TokenURL:     "https://accounts.spotify.com/api/token",
	}
}

func (c *SpotifyClient) Resolve(ctx context.Context, query string) (TrackMeta, bool) {
	query = strings.TrimSpace(query)
	if query == "" {
		return TrackMeta{}, false
	}

	meta, err := c.searchTrack(ctx, query)
	if err != nil {
		log.Printf("spotify search failed for %q: %v", query, err)
		return TrackMeta{}, false
	}
	return meta, true
}

func (c *SpotifyClient) searchTrack(ctx context.Context, query string) (TrackMeta, error) {
	token, err := c.getAccessToken(ctx)
	if err != nil {
		return TrackMeta{}, err
	}

	params := url.Values{}
	params.Set("type", "track")
	params.Set("limit", "1")
	params.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIBase+"/v1/search?"+params.Encode(), nil)
	if err != nil {
		return TrackMeta{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return TrackMeta{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return TrackMeta{}, fmt.Errorf("%w: api status %d", errSpotifyLookup, resp.StatusCode)
	}

	var payload spotifySearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return TrackMeta{}, err
	}

	if len(payload.Tracks.Items) == 0 {
		return TrackMeta{}, fmt.Errorf("%w: no results", errSpotifyLookup)
	}

	item := payload.Tracks.Items[0]
	title := strings.TrimSpace(item.Name)
	if title == "" {
		title = "Unknown Title"
	}

	return TrackMeta{
		Title:     title,
		Artist:    item.artistNames(),
		Duration:  time.Duration(item.DurationMS) * time.Millisecond,
		Thumbnail: item.albumImageURL(),
	}, nil
}

func (c *SpotifyClient) getAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.expiresAt) {
		return c.accessToken, nil
	}

	if c.ClientID == "" || c.ClientSecret == "" {
		return "", fmt.Errorf("%w: missing client credentials", errSpotifyLookup)
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+basicAuth(c.ClientID, c.ClientSecret))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: token status %d", errSpotifyLookup, resp.StatusCode)
	}

	var payload spotifyTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}

	if payload.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", errSpotifyLookup)
	}

	c.accessToken = payload.AccessToken
	c.expiresAt = time.Now().Add(time.Duration(payload.ExpiresIn-30) * time.Second)

	return c.accessToken, nil
}

func basicAuth(clientID, clientSecret string) string {
	raw := clientID + ":" + clientSecret
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

type spotifyTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type spotifySearchResponse struct {
	Tracks struct {
		Items []spotifyTrackItem `json:"items"`
	} `json:"tracks"`
}

type spotifyTrackItem struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DurationMS int64  `json:"duration_ms"`
	Artists    []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
	} `json:"album"`
}

func (t spotifyTrackItem) artistNames() string {
	if len(t.Artists) == 0 {
		return ""
	}
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return strings.Join(names, ", ")
}

func (t spotifyTrackItem) albumImageURL() string {
	if len(t.Album.Images) == 0 {
		return ""
	}
	return t.Album.Images[0].URL
}
