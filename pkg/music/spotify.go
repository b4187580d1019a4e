package music

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jcber/spothoot/pkg/crypto"
	"github.com/jcber/spothoot/pkg/model"
)

const (
	defaultAccountsURL = "https://accounts.spotify.com"
	defaultAPIURL      = "https://api.spotify.com"

	authScope      = "playlist-read-private user-read-private"
	requestTimeout = 10 * time.Second
)

// SpotifyClient implements Provider over the Spotify Web API.
type SpotifyClient struct {
	clientID     string
	clientSecret string
	redirectURL  string

	// Overridable for tests.
	AccountsURL string
	APIURL      string

	httpClient *http.Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

// NewSpotify creates a SpotifyClient with the given application credentials.
func NewSpotify(clientID, clientSecret, redirectURL string) *SpotifyClient {
	return &SpotifyClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
		AccountsURL:  defaultAccountsURL,
		APIURL:       defaultAPIURL,
		httpClient:   &http.Client{Timeout: requestTimeout},
	}
}

// AuthorizeURL returns the URL a client visits to grant access.
func (c *SpotifyClient) AuthorizeURL() string {
	state, err := crypto.GenerateToken()
	if err != nil {
		state = "state"
	}
	q := url.Values{}
	q.Set("client_id", c.clientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", c.redirectURL)
	q.Set("scope", authScope)
	q.Set("state", state)
	return c.AccountsURL + "/authorize?" + q.Encode()
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// ExchangeCode trades an authorization code for tokens and resolves the
// identity of the granting user.
func (c *SpotifyClient) ExchangeCode(ctx context.Context, code string) (*model.UserIdentity, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.redirectURL)

	var tok tokenResponse
	if err := c.postToken(ctx, form, &tok); err != nil {
		return nil, fmt.Errorf("music: exchange code: %w", err)
	}
	c.SetTokens(tok.AccessToken, tok.RefreshToken)

	var me struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
	}
	if err := c.get(ctx, "/v1/me", &me); err != nil {
		return nil, fmt.Errorf("music: fetch profile: %w", err)
	}

	name := me.DisplayName
	if name == "" {
		name = me.ID
	}
	return &model.UserIdentity{
		Name:         name,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}, nil
}

// RefreshAccessToken obtains a fresh access token from a refresh token.
func (c *SpotifyClient) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	var tok tokenResponse
	if err := c.postToken(ctx, form, &tok); err != nil {
		return "", fmt.Errorf("music: refresh token: %w", err)
	}
	return tok.AccessToken, nil
}

// SetTokens installs the credentials used for subsequent API calls.
func (c *SpotifyClient) SetTokens(accessToken, refreshToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = accessToken
	c.refreshToken = refreshToken
}

// UserPlaylists lists the playlists of the current user.
func (c *SpotifyClient) UserPlaylists(ctx context.Context) ([]model.Playlist, error) {
	var body struct {
		Items []struct {
			ID     string `json:"id"`
			Name   string `json:"name"`
			Tracks struct {
				Total int `json:"total"`
			} `json:"tracks"`
		} `json:"items"`
	}
	if err := c.get(ctx, "/v1/me/playlists", &body); err != nil {
		return nil, fmt.Errorf("music: list playlists: %w", err)
	}

	playlists := make([]model.Playlist, 0, len(body.Items))
	for _, item := range body.Items {
		playlists = append(playlists, model.Playlist{
			ID:         item.ID,
			Name:       item.Name,
			TrackCount: item.Tracks.Total,
		})
	}
	return playlists, nil
}

// PlaylistTracks lists the tracks of a playlist. The first listed artist
// of each track is treated as its principal artist.
func (c *SpotifyClient) PlaylistTracks(ctx context.Context, playlistID string) ([]model.Track, error) {
	var body struct {
		Items []struct {
			Track struct {
				ID      string `json:"id"`
				Name    string `json:"name"`
				Artists []struct {
					ID   string `json:"id"`
					Name string `json:"name"`
				} `json:"artists"`
			} `json:"track"`
		} `json:"items"`
	}
	path := "/v1/playlists/" + url.PathEscape(playlistID) + "/tracks"
	if err := c.get(ctx, path, &body); err != nil {
		return nil, fmt.Errorf("music: list playlist tracks: %w", err)
	}

	tracks := make([]model.Track, 0, len(body.Items))
	for _, item := range body.Items {
		t := model.Track{ID: item.Track.ID, Name: item.Track.Name}
		if len(item.Track.Artists) > 0 {
			t.Artist = item.Track.Artists[0].Name
			t.ArtistID = item.Track.Artists[0].ID
		}
		tracks = append(tracks, t)
	}
	return tracks, nil
}

// SimilarTracks selects up to n tracks spread evenly across the given set.
// The selection is deterministic for a given input.
func (c *SpotifyClient) SimilarTracks(tracks []model.Track, n int) []model.Track {
	if n <= 0 || len(tracks) == 0 {
		return nil
	}
	if n >= len(tracks) {
		out := make([]model.Track, len(tracks))
		copy(out, tracks)
		return out
	}
	out := make([]model.Track, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, tracks[i*len(tracks)/n])
	}
	return out
}

// ArtistOptions builds the multiple-choice artist names for a track. The
// correct artist appears exactly once at a position derived from the track
// id; the remaining options come from the artist's related artists.
func (c *SpotifyClient) ArtistOptions(ctx context.Context, track model.Track) ([]string, error) {
	var body struct {
		Artists []struct {
			Name string `json:"name"`
		} `json:"artists"`
	}
	path := "/v1/artists/" + url.PathEscape(track.ArtistID) + "/related-artists"
	if err := c.get(ctx, path, &body); err != nil {
		return nil, fmt.Errorf("music: related artists: %w", err)
	}

	others := make([]string, 0, 3)
	for _, a := range body.Artists {
		if a.Name == "" || a.Name == track.Artist {
			continue
		}
		others = append(others, a.Name)
		if len(others) == 3 {
			break
		}
	}

	pos := optionPosition(track.ID, len(others)+1)
	options := make([]string, 0, len(others)+1)
	options = append(options, others[:pos]...)
	options = append(options, track.Artist)
	options = append(options, others[pos:]...)
	return options, nil
}

func optionPosition(trackID string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(trackID))
	return int(h.Sum32() % uint32(n))
}

func (c *SpotifyClient) bearer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

func (c *SpotifyClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearer())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d for %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *SpotifyClient) postToken(ctx context.Context, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.AccountsURL+"/api/token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from token endpoint", resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Compile-time check: *SpotifyClient implements Provider.
var _ Provider = (*SpotifyClient)(nil)
