package models

import "time"

// Session identifies one editing client. Locks are owned by sessions.
type Session struct {
	ID         string    `json:"id"`
	User       string    `json:"user"`
	TokenHash  string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}
