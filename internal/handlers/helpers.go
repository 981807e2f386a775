package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/HammerMeetNail/petpals/internal/metrics"
	"github.com/HammerMeetNail/petpals/internal/models"
	"github.com/HammerMeetNail/petpals/internal/services"
)

type contextKey string

const userContextKey contextKey = "user"

type ErrorResponse struct {
	Error     string                `json:"error"`
	Fields    []services.FieldError `json:"fields,omitempty"`
	Retryable bool                  `json:"retryable,omitempty"`
}

func SetUserInContext(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func GetUserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(userContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps errors shared by every endpoint. Sentinels with
// endpoint-specific wording are handled by the caller first.
func writeServiceError(w http.ResponseWriter, err error, action string) {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Fields: verr.Fields})
		return
	}
	switch {
	case errors.Is(err, services.ErrPetNotFound):
		writeError(w, http.StatusNotFound, "Pet not found")
		return
	case errors.Is(err, services.ErrMatchNotFound):
		writeError(w, http.StatusNotFound, "Match not found")
		return
	case errors.Is(err, services.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, "Profile not found")
		return
	case services.IsConflict(err):
		writeError(w, http.StatusConflict, conflictMessage(err))
		return
	}

	if ge, ok := services.AsGatewayError(err); ok && ge.Retryable() {
		kind := "unavailable"
		if ge.Timeout() {
			kind = "timeout"
		}
		metrics.GatewayErrorsTotal.WithLabelValues(kind).Inc()
		log.Printf("Error %s: %v", action, err)
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "Service temporarily unavailable", Retryable: true})
		return
	}

	if _, ok := services.AsGatewayError(err); ok {
		metrics.GatewayErrorsTotal.WithLabelValues("other").Inc()
	}
	log.Printf("Error %s: %v", action, err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrCannotMatchSelf):
		return "A pet cannot match with itself"
	case errors.Is(err, services.ErrCannotMatchOwnPet):
		return "Cannot match with your own pet"
	case errors.Is(err, services.ErrMatchRejected):
		return "This match was declined"
	case errors.Is(err, services.ErrMatchAlreadyAccepted):
		return "Match already accepted"
	case errors.Is(err, services.ErrMatchPairExists):
		return "A match already exists for these pets"
	default:
		return "Conflict"
	}
}

func parsePathID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// ownsPet reports whether petID is one of the user's pets.
func ownsPet(petIDs []uuid.UUID, petID uuid.UUID) bool {
	for _, id := range petIDs {
		if id == petID {
			return true
		}
	}
	return false
}
