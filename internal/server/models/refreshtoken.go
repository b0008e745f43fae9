package models

import "time"

// RefreshToken is a stored single-use refresh token. Tokens are deleted
// when consumed, so a row only exists until the pair is rotated.
type RefreshToken struct {
	ID        string
	UserID    string
	Token     string
	Expires   time.Time
	CreatedAt time.Time
}
