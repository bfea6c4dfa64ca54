package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("resource conflict")

	// ErrGrantExchange means the one-time authorization code could not be
	// exchanged for a token pair. Codes are single-use, so the user has to
	// restart the login flow.
	ErrGrantExchange = errors.New("oauth grant exchange failed")

	// ErrNoCredential means the profile has no stored provider credential.
	ErrNoCredential = errors.New("no provider credential")

	// ErrCredentialRevoked means the provider permanently rejected the
	// refresh token. The stored credential has been deleted and the user
	// must reconnect their ring.
	ErrCredentialRevoked = errors.New("provider credential revoked")

	// ErrTransientRefresh means a token refresh failed for a recoverable
	// reason (network error, provider 5xx). The stored credential is kept.
	ErrTransientRefresh = errors.New("transient token refresh failure")

	// ErrDecryption means stored ciphertext could not be opened with the
	// configured key.
	ErrDecryption = errors.New("ciphertext decryption failed")
)

// ValidationError represents a field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// MetricsFetchError is a non-200 response from the provider's metrics API.
// It is carried as a value so one profile's API error never aborts a
// leaderboard batch.
type MetricsFetchError struct {
	StatusCode int
	Body       string
}

func (e *MetricsFetchError) Error() string {
	return fmt.Sprintf("metrics api returned status %d: %s", e.StatusCode, e.Body)
}
