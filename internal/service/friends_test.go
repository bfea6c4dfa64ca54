package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringboard/ringboard/internal/domain"
)

type memFriendStore struct {
	links []domain.FriendLink
}

func (s *memFriendStore) Create(_ context.Context, ownerID, targetID uuid.UUID) (*domain.FriendLink, error) {
	for _, l := range s.links {
		if l.OwnerID == ownerID && l.TargetID == targetID {
			return nil, domain.ErrConflict
		}
	}
	link := domain.FriendLink{ID: int64(len(s.links) + 1), OwnerID: ownerID, TargetID: targetID}
	s.links = append(s.links, link)
	return &link, nil
}

func (s *memFriendStore) ListTargets(context.Context, uuid.UUID) ([]domain.Profile, error) {
	return nil, nil
}

func (s *memFriendStore) Delete(_ context.Context, ownerID, targetID uuid.UUID) error {
	for i, l := range s.links {
		if l.OwnerID == ownerID && l.TargetID == targetID {
			s.links = append(s.links[:i], s.links[i+1:]...)
			return nil
		}
	}
	return nil
}

func TestFriendAddRejectsSelfLink(t *testing.T) {
	profiles := newMemProfileStore()
	me := profiles.add(profileNamed("me"))

	svc := NewFriendService(&memFriendStore{}, profiles)
	_, err := svc.Add(context.Background(), me.ID, me.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestFriendAddUnknownTarget(t *testing.T) {
	profiles := newMemProfileStore()
	me := profiles.add(profileNamed("me"))

	svc := NewFriendService(&memFriendStore{}, profiles)
	_, err := svc.Add(context.Background(), me.ID, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFriendAddDuplicatePair(t *testing.T) {
	profiles := newMemProfileStore()
	me := profiles.add(profileNamed("me"))
	them := profiles.add(profileNamed("them"))

	svc := NewFriendService(&memFriendStore{}, profiles)
	_, err := svc.Add(context.Background(), me.ID, them.ID)
	require.NoError(t, err)

	_, err = svc.Add(context.Background(), me.ID, them.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
}
