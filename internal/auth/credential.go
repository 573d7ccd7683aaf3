package auth

import (
	"errors"
	"time"
)

// ErrNoCredential is returned when no access token has ever been obtained
// and a fresh authentication attempt also failed.
var ErrNoCredential = errors.New("no usable credential")

// Credential is the broker credential record. It is owned by the Manager
// and mutated only by a refresh.
type Credential struct {
	ClientID     string    `json:"client_id"`
	Secret       string    `json:"-"`
	RefreshToken string    `json:"-"`
	AccessToken  string    `json:"access_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Usable reports whether the access token is present and unexpired.
func (c *Credential) Usable(now time.Time) bool {
	return c != nil && c.AccessToken != "" && now.Before(c.ExpiresAt)
}
