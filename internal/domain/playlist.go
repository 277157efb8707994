package domain

import "time"

// Playlist represents a user-owned collection of songs. CRUD lives outside
// the auth core; the type is kept here so consumers share one model.
type Playlist struct {
	ID          int64     `json:"id" db:"id"`
	OwnerID     string    `json:"owner_id" db:"owner_id"`
	Title       string    `json:"title" db:"title"`
	Description *string   `json:"description,omitempty" db:"description"`
	Public      bool      `json:"public" db:"public"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
