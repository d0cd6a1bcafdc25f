package checkin

import "time"

// Status values
const (
	StatusActive   = "ACTIVE"
	StatusArchived = "ARCHIVED"
)

// CheckIn is a user's presence at a church
type CheckIn struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ChurchID  string    `json:"church_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	// Table is the table the row was read from or written to.
	Table string `json:"table"`
}

// CheckInRequest represents the request to check in at a church
type CheckInRequest struct {
	ChurchID string `json:"church_id" validate:"required"`
}
