package domain

import (
	"time"

	"github.com/google/uuid"
)

// FriendLink is a directed follow edge between two profiles. At most one
// edge exists per (owner, target) pair.
type FriendLink struct {
	ID        int64     `json:"id" db:"id"`
	OwnerID   uuid.UUID `json:"owner_id" db:"owner_id"`
	TargetID  uuid.UUID `json:"target_id" db:"target_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
