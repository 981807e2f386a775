package models

import (
	"time"

	"github.com/google/uuid"
)

// PetRemovedNotice is the system message posted into every accepted match
// of a pet that its owner deleted.
const PetRemovedNotice = "This pet has been removed by its owner and is no longer available for matching."

type Message struct {
	ID        uuid.UUID `json:"id"`
	MatchID   uuid.UUID `json:"match_id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
