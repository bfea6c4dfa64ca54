package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ringboard/ringboard/internal/domain"
)

// CredentialRepository handles provider credential data access operations.
// Tokens are stored encrypted; this layer never sees plaintext.
type CredentialRepository struct {
	db *sqlx.DB
}

// NewCredentialRepository creates a new CredentialRepository.
func NewCredentialRepository(db *sqlx.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// FindByProfileID retrieves the credential for a profile.
// Returns domain.ErrNotFound when the profile has never connected or its
// credential has been deleted.
func (r *CredentialRepository) FindByProfileID(ctx context.Context, profileID uuid.UUID) (*domain.Credential, error) {
	var cred domain.Credential
	err := r.db.GetContext(ctx, &cred,
		`SELECT profile_id, access_token_encrypted, refresh_token_encrypted, expires_at, scopes, created_at, updated_at
		 FROM oura_credentials WHERE profile_id = $1`, profileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find credential for profile %s: %w", profileID, err)
	}
	return &cred, nil
}

// Upsert writes the credential pair for a profile as a unit. A profile has
// at most one credential row, so conflicts update in place.
func (r *CredentialRepository) Upsert(ctx context.Context, cred domain.Credential) (*domain.Credential, error) {
	var result domain.Credential
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO oura_credentials (profile_id, access_token_encrypted, refresh_token_encrypted, expires_at, scopes)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (profile_id)
		 DO UPDATE SET access_token_encrypted = EXCLUDED.access_token_encrypted,
		               refresh_token_encrypted = EXCLUDED.refresh_token_encrypted,
		               expires_at = EXCLUDED.expires_at,
		               scopes = EXCLUDED.scopes,
		               updated_at = NOW()
		 RETURNING profile_id, access_token_encrypted, refresh_token_encrypted, expires_at, scopes, created_at, updated_at`,
		cred.ProfileID, cred.AccessTokenEncrypted, cred.RefreshTokenEncrypted, cred.ExpiresAt, cred.Scopes,
	).StructScan(&result)
	if err != nil {
		return nil, fmt.Errorf("upsert credential: %w", err)
	}
	return &result, nil
}

// Delete removes the credential for a profile. Deleting an absent row is
// not an error, so revocation stays idempotent.
func (r *CredentialRepository) Delete(ctx context.Context, profileID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM oura_credentials WHERE profile_id = $1`, profileID); err != nil {
		return fmt.Errorf("delete credential for profile %s: %w", profileID, err)
	}
	return nil
}
