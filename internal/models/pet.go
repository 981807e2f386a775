package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/HammerMeetNail/petpals/internal/geo"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

type Pet struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Name      string    `json:"name"`
	Breed     string    `json:"breed"`
	Age       float64   `json:"age"`
	Gender    Gender    `json:"gender"`
	Bio       string    `json:"bio"`
	ImageURL  string    `json:"image_url"`
	Location  *string   `json:"location,omitempty"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Coordinates returns the stored geocoordinate when both parts are present.
func (p Pet) Coordinates() (geo.Point, bool) {
	if p.Latitude == nil || p.Longitude == nil {
		return geo.Point{}, false
	}
	return geo.Point{Latitude: *p.Latitude, Longitude: *p.Longitude}, true
}

// PetInput is the writable part of a pet profile.
type PetInput struct {
	Name      string   `json:"name" validate:"required,max=100"`
	Breed     string   `json:"breed" validate:"required,max=100"`
	Age       float64  `json:"age" validate:"gt=0,lte=100"`
	Gender    Gender   `json:"gender" validate:"required,oneof=male female"`
	Bio       string   `json:"bio" validate:"max=1000"`
	ImageURL  string   `json:"image_url" validate:"omitempty,url,max=2048"`
	Location  *string  `json:"location,omitempty" validate:"omitempty,max=200"`
	Latitude  *float64 `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
}

// Candidate is a pet in a discovery queue, with its distance from the
// requester when both locations are known.
type Candidate struct {
	Pet
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

type DeleteOutcome string

const (
	DeleteOutcomeDeleted           DeleteOutcome = "deleted"
	DeleteOutcomeBlockedHasMatches DeleteOutcome = "blocked_has_matches"
)

type PetDeletion struct {
	PetID            uuid.UUID     `json:"pet_id"`
	Outcome          DeleteOutcome `json:"outcome"`
	NotifiedMatchIDs []uuid.UUID   `json:"notified_match_ids,omitempty"`
	FailedMatchIDs   []uuid.UUID   `json:"failed_match_ids,omitempty"`
}
