package models

import (
	"time"

	"github.com/google/uuid"
)

type MatchStatus string

const (
	MatchStatusPending  MatchStatus = "pending"
	MatchStatusAccepted MatchStatus = "accepted"
	MatchStatusRejected MatchStatus = "rejected"
)

// Match links an initiating pet (PetID) to a target pet (MatchedPetID).
// The row is directional but an accepted match is symmetric in meaning.
type Match struct {
	ID           uuid.UUID   `json:"id"`
	PetID        uuid.UUID   `json:"pet_id"`
	MatchedPetID uuid.UUID   `json:"matched_pet_id"`
	Status       MatchStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

func (m Match) Involves(petID uuid.UUID) bool {
	return m.PetID == petID || m.MatchedPetID == petID
}

// Other returns the pet on the opposite side from petID.
func (m Match) Other(petID uuid.UUID) uuid.UUID {
	if m.PetID == petID {
		return m.MatchedPetID
	}
	return m.PetID
}

type MatchOutcome string

const (
	MatchOutcomeCreatedPending MatchOutcome = "created_pending"
	MatchOutcomeAccepted       MatchOutcome = "accepted"
	MatchOutcomeAlreadyPending MatchOutcome = "already_pending"
)

// PetSummary is one side of a resolved match.
type PetSummary struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	OwnerName string    `json:"owner_name"`
	Name      string    `json:"name"`
	Breed     string    `json:"breed"`
	Age       float64   `json:"age"`
	Gender    Gender    `json:"gender"`
	Bio       string    `json:"bio"`
	ImageURL  string    `json:"image_url"`
	Location  *string   `json:"location,omitempty"`
	Removed   bool      `json:"removed,omitempty"`
}

type ResolvedMatch struct {
	MatchID   uuid.UUID   `json:"match_id"`
	Status    MatchStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	Self      PetSummary  `json:"self"`
	Other     PetSummary  `json:"other"`
}
