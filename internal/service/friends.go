package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ringboard/ringboard/internal/domain"
)

// FriendStore defines the friend-link data access interface consumed by
// FriendService.
type FriendStore interface {
	Create(ctx context.Context, ownerID, targetID uuid.UUID) (*domain.FriendLink, error)
	ListTargets(ctx context.Context, ownerID uuid.UUID) ([]domain.Profile, error)
	Delete(ctx context.Context, ownerID, targetID uuid.UUID) error
}

// FriendService manages follow edges between profiles.
type FriendService struct {
	friends  FriendStore
	profiles ProfileStore
}

// NewFriendService creates a new FriendService.
func NewFriendService(friends FriendStore, profiles ProfileStore) *FriendService {
	return &FriendService{friends: friends, profiles: profiles}
}

// Add creates a follow edge from owner to target. Self-links are rejected;
// a duplicate pair surfaces as domain.ErrConflict from the store.
func (s *FriendService) Add(ctx context.Context, ownerID, targetID uuid.UUID) (*domain.FriendLink, error) {
	if ownerID == targetID {
		return nil, fmt.Errorf("%w: cannot befriend yourself", domain.ErrInvalidInput)
	}
	if _, err := s.profiles.FindByID(ctx, targetID); err != nil {
		return nil, err
	}
	return s.friends.Create(ctx, ownerID, targetID)
}

// List returns the profiles the owner follows.
func (s *FriendService) List(ctx context.Context, ownerID uuid.UUID) ([]domain.Profile, error) {
	return s.friends.ListTargets(ctx, ownerID)
}

// Remove deletes the edge from owner to target, if present.
func (s *FriendService) Remove(ctx context.Context, ownerID, targetID uuid.UUID) error {
	return s.friends.Delete(ctx, ownerID, targetID)
}
