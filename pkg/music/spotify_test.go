package music_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jcber/spothoot/pkg/model"
	"github.com/jcber/spothoot/pkg/music"

	"github.com/google/go-cmp/cmp"
)

func newTestClient(t *testing.T, accounts, api http.Handler) *music.SpotifyClient {
	t.Helper()

	c := music.NewSpotify("client-id", "client-secret", "http://localhost/callback")
	if accounts != nil {
		srv := httptest.NewServer(accounts)
		t.Cleanup(srv.Close)
		c.AccountsURL = srv.URL
	}
	if api != nil {
		srv := httptest.NewServer(api)
		t.Cleanup(srv.Close)
		c.APIURL = srv.URL
	}
	return c
}

func TestSimilarTracks(t *testing.T) {
	t.Parallel()

	tracks := make([]model.Track, 10)
	for i := range tracks {
		tracks[i] = model.Track{ID: fmt.Sprintf("t%d", i)}
	}

	type tcase struct {
		n    int
		want []string
	}

	tcases := map[string]tcase{
		"zero":          {n: 0, want: nil},
		"more_than_set": {n: 20, want: []string{"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8", "t9"}},
		"spread":        {n: 3, want: []string{"t0", "t3", "t6"}},
		"half":          {n: 5, want: []string{"t0", "t2", "t4", "t6", "t8"}},
	}

	c := music.NewSpotify("", "", "")
	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			got := c.SimilarTracks(tracks, tc.n)
			var ids []string
			for _, tr := range got {
				ids = append(ids, tr.ID)
			}
			if diff := cmp.Diff(tc.want, ids); diff != "" {
				t.Fatalf("SimilarTracks mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSimilarTracksDeterministic(t *testing.T) {
	t.Parallel()

	tracks := []model.Track{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}
	c := music.NewSpotify("", "", "")

	first := c.SimilarTracks(tracks, 2)
	second := c.SimilarTracks(tracks, 2)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("selection not deterministic (-first +second):\n%s", diff)
	}
}

func TestArtistOptions(t *testing.T) {
	t.Parallel()

	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1/artists/ar1/related-artists") {
			http.NotFound(w, r)
			return
		}
		// Includes a duplicate of the correct artist that must be filtered
		fmt.Fprint(w, `{"artists":[{"name":"Beta"},{"name":"Alpha"},{"name":"Gamma"},{"name":"Delta"},{"name":"Epsilon"}]}`)
	})
	c := newTestClient(t, nil, api)

	track := model.Track{ID: "t1", Artist: "Alpha", ArtistID: "ar1"}
	options, err := c.ArtistOptions(context.Background(), track)
	if err != nil {
		t.Fatalf("ArtistOptions: %v", err)
	}

	if len(options) != 4 {
		t.Fatalf("expected 4 options, got %d: %v", len(options), options)
	}
	var correct int
	for _, o := range options {
		if o == "Alpha" {
			correct++
		}
	}
	if correct != 1 {
		t.Fatalf("correct artist appears %d times, want 1: %v", correct, options)
	}
}

func TestArtistOptionsFewRelated(t *testing.T) {
	t.Parallel()

	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"artists":[{"name":"Beta"}]}`)
	})
	c := newTestClient(t, nil, api)

	options, err := c.ArtistOptions(context.Background(), model.Track{ID: "t1", Artist: "Alpha", ArtistID: "ar1"})
	if err != nil {
		t.Fatalf("ArtistOptions: %v", err)
	}
	if len(options) != 2 {
		t.Fatalf("expected 2 options, got %v", options)
	}
}

func TestExchangeCode(t *testing.T) {
	t.Parallel()

	accounts := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/token" {
			http.NotFound(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-id" || pass != "client-secret" {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "authorization_code" || r.PostForm.Get("code") != "abc" {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"access_token":"at-1","refresh_token":"rt-1"}`)
	})
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/me" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer at-1" {
			http.Error(w, "bad token", http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"id":"u1","display_name":"John Doe"}`)
	})
	c := newTestClient(t, accounts, api)

	user, err := c.ExchangeCode(context.Background(), "abc")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}

	want := &model.UserIdentity{Name: "John Doe", AccessToken: "at-1", RefreshToken: "rt-1"}
	if diff := cmp.Diff(want, user); diff != "" {
		t.Fatalf("ExchangeCode mismatch (-want +got):\n%s", diff)
	}
}

func TestRefreshAccessToken(t *testing.T) {
	t.Parallel()

	accounts := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "refresh_token" || r.PostForm.Get("refresh_token") != "rt-1" {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"access_token":"at-2"}`)
	})
	c := newTestClient(t, accounts, nil)

	token, err := c.RefreshAccessToken(context.Background(), "rt-1")
	if err != nil {
		t.Fatalf("RefreshAccessToken: %v", err)
	}
	if token != "at-2" {
		t.Fatalf("token = %q, want at-2", token)
	}
}

func TestUserPlaylists(t *testing.T) {
	t.Parallel()

	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/me/playlists" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"items":[{"id":"pl1","name":"Roadtrip","tracks":{"total":12}},{"id":"pl2","name":"Focus","tracks":{"total":3}}]}`)
	})
	c := newTestClient(t, nil, api)

	playlists, err := c.UserPlaylists(context.Background())
	if err != nil {
		t.Fatalf("UserPlaylists: %v", err)
	}

	want := []model.Playlist{
		{ID: "pl1", Name: "Roadtrip", TrackCount: 12},
		{ID: "pl2", Name: "Focus", TrackCount: 3},
	}
	if diff := cmp.Diff(want, playlists); diff != "" {
		t.Fatalf("UserPlaylists mismatch (-want +got):\n%s", diff)
	}
}

func TestPlaylistTracks(t *testing.T) {
	t.Parallel()

	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/playlists/pl1/tracks" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"items":[{"track":{"id":"t1","name":"Song A","artists":[{"id":"ar1","name":"Alpha"},{"id":"ar2","name":"Beta"}]}}]}`)
	})
	c := newTestClient(t, nil, api)

	tracks, err := c.PlaylistTracks(context.Background(), "pl1")
	if err != nil {
		t.Fatalf("PlaylistTracks: %v", err)
	}

	want := []model.Track{{ID: "t1", Name: "Song A", Artist: "Alpha", ArtistID: "ar1"}}
	if diff := cmp.Diff(want, tracks); diff != "" {
		t.Fatalf("PlaylistTracks mismatch (-want +got):\n%s", diff)
	}
}
