package domain

import "time"

// Song represents a track that can appear in playlists and event setlists.
type Song struct {
	ID        int64     `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Artist    *string   `json:"artist,omitempty" db:"artist"`
	URL       *string   `json:"url,omitempty" db:"url"`
	AddedBy   string    `json:"added_by" db:"added_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
