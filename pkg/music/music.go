// Package music integrates the quiz server with a streaming content
// provider. The Provider interface covers the OAuth flow, playlist
// retrieval and the track selection used when building quizzes.
package music

import (
	"context"

	"github.com/jcber/spothoot/pkg/model"
)

// Provider is the content-provider surface the dispatcher depends on.
type Provider interface {
	// AuthorizeURL returns the URL a client visits to grant access.
	AuthorizeURL() string

	// ExchangeCode trades an authorization code for tokens and resolves
	// the identity of the granting user. The returned identity has no ID;
	// persistence is the caller's concern.
	ExchangeCode(ctx context.Context, code string) (*model.UserIdentity, error)

	// RefreshAccessToken obtains a fresh access token from a refresh token.
	RefreshAccessToken(ctx context.Context, refreshToken string) (string, error)

	// SetTokens installs the credentials used for subsequent API calls.
	SetTokens(accessToken, refreshToken string)

	// UserPlaylists lists the playlists of the current user.
	UserPlaylists(ctx context.Context) ([]model.Playlist, error)

	// PlaylistTracks lists the tracks of a playlist.
	PlaylistTracks(ctx context.Context, playlistID string) ([]model.Track, error)

	// SimilarTracks selects up to n tracks spread across the given set.
	SimilarTracks(tracks []model.Track, n int) []model.Track

	// ArtistOptions builds the multiple-choice artist names for a track.
	// The correct artist appears exactly once.
	ArtistOptions(ctx context.Context, track model.Track) ([]string, error)
}
