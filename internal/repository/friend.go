package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/ringboard/ringboard/internal/domain"
)

const pgUniqueViolation = "23505"

// FriendRepository handles friend-link data access operations.
type FriendRepository struct {
	db *sqlx.DB
}

// NewFriendRepository creates a new FriendRepository.
func NewFriendRepository(db *sqlx.DB) *FriendRepository {
	return &FriendRepository{db: db}
}

// Create adds a directed follow edge. A second edge for the same
// (owner, target) pair maps to domain.ErrConflict.
func (r *FriendRepository) Create(ctx context.Context, ownerID, targetID uuid.UUID) (*domain.FriendLink, error) {
	var link domain.FriendLink
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO friend_links (owner_id, target_id)
		 VALUES ($1, $2)
		 RETURNING id, owner_id, target_id, created_at`,
		ownerID, targetID,
	).StructScan(&link)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, domain.ErrConflict
		}
		return nil, fmt.Errorf("create friend link: %w", err)
	}
	return &link, nil
}

// ListTargets returns the profiles the owner follows, in link creation order.
func (r *FriendRepository) ListTargets(ctx context.Context, ownerID uuid.UUID) ([]domain.Profile, error) {
	var profiles []domain.Profile
	err := r.db.SelectContext(ctx, &profiles,
		`SELECT p.id, p.oura_user_id, p.email, p.display_name, p.created_at, p.updated_at
		 FROM friend_links fl
		 JOIN profiles p ON p.id = fl.target_id
		 WHERE fl.owner_id = $1
		 ORDER BY fl.created_at, fl.id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list friends for %s: %w", ownerID, err)
	}
	return profiles, nil
}

// Delete removes the edge from owner to target, if present.
func (r *FriendRepository) Delete(ctx context.Context, ownerID, targetID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM friend_links WHERE owner_id = $1 AND target_id = $2`,
		ownerID, targetID); err != nil {
		return fmt.Errorf("delete friend link: %w", err)
	}
	return nil
}
