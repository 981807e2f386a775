package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

const (
	TablePets     = "pets"
	TableMatches  = "matches"
	TableMessages = "messages"
	TableProfiles = "profiles"
)

// ChangeEvent describes one committed row mutation. Keys holds the column
// values the event can be routed by (for example match_id for messages).
type ChangeEvent struct {
	Table      string            `json:"table"`
	Type       ChangeType        `json:"type"`
	RecordID   uuid.UUID         `json:"record_id"`
	Keys       map[string]string `json:"keys,omitempty"`
	Record     json.RawMessage   `json:"record,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Decode unmarshals the event record into dest.
func (e ChangeEvent) Decode(dest any) error {
	return json.Unmarshal(e.Record, dest)
}
