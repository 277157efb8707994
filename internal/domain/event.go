package domain

import "time"

// EventStatus represents the lifecycle state of an event.
type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPublished EventStatus = "published"
	EventStatusFinished  EventStatus = "finished"
)

// Event represents a live event with an associated setlist.
type Event struct {
	ID         int64       `json:"id" db:"id"`
	OwnerID    string      `json:"owner_id" db:"owner_id"`
	Title      string      `json:"title" db:"title"`
	Status     EventStatus `json:"status" db:"status"`
	PlaylistID *int64      `json:"playlist_id,omitempty" db:"playlist_id"`
	StartsAt   *time.Time  `json:"starts_at,omitempty" db:"starts_at"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at" db:"updated_at"`
}
