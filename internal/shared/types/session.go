package types

import "time"

// Identity is an authenticated publisher
type Identity struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Grant is a live publication session
type Grant struct {
	ID        string    `json:"id"`
	Identity  Identity  `json:"identity"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the grant has a deadline that has passed
func (g *Grant) Expired(now time.Time) bool {
	return !g.ExpiresAt.IsZero() && !now.Before(g.ExpiresAt)
}

// SessionStats contains session authority statistics
type SessionStats struct {
	Active     int        `json:"active"`
	Issued     uint64     `json:"issued"`
	Revoked    uint64     `json:"revoked"`
	LastIssued *time.Time `json:"last_issued,omitempty"`
}
