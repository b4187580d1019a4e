package model

// Playlist is a content-provider playlist as shown to clients when they
// pick a quiz source.
type Playlist struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	TrackCount int    `json:"track_count"`
}

// Track is a content-provider track. Artist is the primary artist name,
// which doubles as the correct answer for a question built on the track.
type Track struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Artist   string `json:"artist"`
	ArtistID string `json:"artist_id"`
}
