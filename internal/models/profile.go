package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultOwnerName stands in for owners whose profile is missing or unnamed.
const DefaultOwnerName = "Pet Owner"

type Profile struct {
	ID        uuid.UUID `json:"id"`
	FullName  *string   `json:"full_name,omitempty"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
	Location  *string   `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Profile) DisplayName() string {
	if p == nil || p.FullName == nil || strings.TrimSpace(*p.FullName) == "" {
		return DefaultOwnerName
	}
	return strings.TrimSpace(*p.FullName)
}

// User is the authenticated caller as established by the identity provider.
type User struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email,omitempty"`
	FullName string    `json:"full_name,omitempty"`
}
