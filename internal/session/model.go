package session

import "time"

type Session struct {
	ID        string
	PersonID  string
	TokenHash string
	IP        string
	UserAgent string
	Device    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Record is a session row joined with the owner's account state.
type Record struct {
	Session
	PersonBanned  bool
	PersonDeleted bool
}

type View struct {
	ID        string    `json:"id"`
	IP        string    `json:"ip"`
	Device    string    `json:"device"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Current   bool      `json:"current"`
}

// Issued is returned once at login; the raw token is never stored.
type Issued struct {
	Token     string    `json:"session_token"`
	PersonID  string    `json:"person_id"`
	ExpiresAt time.Time `json:"expires_at"`
}
