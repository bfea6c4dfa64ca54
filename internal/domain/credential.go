package domain

import (
	"time"

	"github.com/google/uuid"
)

// Credential is the encrypted OAuth token pair linking one Profile to the
// provider. Exactly one row per profile; created and updated as a unit.
// The refresh token is optional since the provider does not always issue one.
type Credential struct {
	ProfileID             uuid.UUID `json:"profile_id" db:"profile_id"`
	AccessTokenEncrypted  string    `json:"-" db:"access_token_encrypted"`
	RefreshTokenEncrypted *string   `json:"-" db:"refresh_token_encrypted"`
	ExpiresAt             time.Time `json:"expires_at" db:"expires_at"`
	Scopes                string    `json:"scopes" db:"scopes"`
	CreatedAt             time.Time `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time `json:"updated_at" db:"updated_at"`
}

// Expired reports whether the access token is past its expiry, with a small
// skew so a token about to lapse mid-request is refreshed up front.
func (c Credential) Expired(now time.Time, skew time.Duration) bool {
	return !now.Add(skew).Before(c.ExpiresAt)
}
