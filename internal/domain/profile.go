package domain

import (
	"time"

	"github.com/google/uuid"
)

// Profile represents a registered end user, distinct from their Oura account.
// Created on the first successful OAuth callback; email and display name are
// refreshed on subsequent logins.
type Profile struct {
	ID          uuid.UUID `json:"id" db:"id"`
	OuraUserID  string    `json:"oura_user_id" db:"oura_user_id"`
	Email       string    `json:"email" db:"email"`
	DisplayName string    `json:"display_name" db:"display_name"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// PersonalInfo is the identity payload from the provider's personal_info
// endpoint, used to link a Profile to its Oura account.
type PersonalInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
