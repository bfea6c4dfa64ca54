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

// ProfileRepository handles profile data access operations.
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// FindByID retrieves a profile by its ID.
func (r *ProfileRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	var profile domain.Profile
	err := r.db.GetContext(ctx, &profile,
		`SELECT id, oura_user_id, email, display_name, created_at, updated_at
		 FROM profiles WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find profile by id %s: %w", id, err)
	}
	return &profile, nil
}

// List returns all known profiles in creation order. Every profile is
// included whether or not it still has a provider credential.
func (r *ProfileRepository) List(ctx context.Context) ([]domain.Profile, error) {
	var profiles []domain.Profile
	err := r.db.SelectContext(ctx, &profiles,
		`SELECT id, oura_user_id, email, display_name, created_at, updated_at
		 FROM profiles ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return profiles, nil
}

// Upsert creates a profile on first login or refreshes email and display
// name on subsequent logins, keyed by the provider's user id.
// Returns the created or updated profile.
func (r *ProfileRepository) Upsert(ctx context.Context, profile domain.Profile) (*domain.Profile, error) {
	var result domain.Profile
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO profiles (oura_user_id, email, display_name)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (oura_user_id)
		 DO UPDATE SET email = EXCLUDED.email,
		               display_name = EXCLUDED.display_name,
		               updated_at = NOW()
		 RETURNING id, oura_user_id, email, display_name, created_at, updated_at`,
		profile.OuraUserID, profile.Email, profile.DisplayName,
	).StructScan(&result)
	if err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}
	return &result, nil
}
