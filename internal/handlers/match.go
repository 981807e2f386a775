package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/HammerMeetNail/petpals/internal/models"
	"github.com/HammerMeetNail/petpals/internal/services"
)

type MatchHandler struct {
	matchService services.MatchServiceInterface
	petService   services.PetServiceInterface
}

func NewMatchHandler(matchService services.MatchServiceInterface, petService services.PetServiceInterface) *MatchHandler {
	return &MatchHandler{matchService: matchService, petService: petService}
}

type MatchRequest struct {
	PetID       uuid.UUID `json:"pet_id"`
	TargetPetID uuid.UUID `json:"target_pet_id"`
}

type MatchResponse struct {
	Match   *models.Match       `json:"match"`
	Outcome models.MatchOutcome `json:"outcome,omitempty"`
}

type MatchListResponse struct {
	Matches []models.ResolvedMatch `json:"matches"`
}

type FindMatchResponse struct {
	MatchID uuid.UUID `json:"match_id"`
}

// decodeMatchRequest reads the body and checks the caller is acting as one
// of their own pets. It writes the error response itself.
func (h *MatchHandler) decodeMatchRequest(w http.ResponseWriter, r *http.Request, user *models.User) (MatchRequest, bool) {
	var req MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return req, false
	}
	if req.PetID == uuid.Nil || req.TargetPetID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "pet_id and target_pet_id are required")
		return req, false
	}

	petIDs, err := h.petService.PetIDsForOwner(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, err, "listing pets")
		return req, false
	}
	if !ownsPet(petIDs, req.PetID) {
		writeError(w, http.StatusNotFound, "Pet not found")
		return req, false
	}
	return req, true
}

func (h *MatchHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	req, ok := h.decodeMatchRequest(w, r, user)
	if !ok {
		return
	}

	match, outcome, err := h.matchService.CreateOrAcceptMatch(r.Context(), req.PetID, req.TargetPetID)
	if err != nil {
		writeServiceError(w, err, "creating match")
		return
	}

	status := http.StatusOK
	if outcome == models.MatchOutcomeCreatedPending {
		status = http.StatusCreated
	}
	writeJSON(w, status, MatchResponse{Match: match, Outcome: outcome})
}

func (h *MatchHandler) Decline(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	req, ok := h.decodeMatchRequest(w, r, user)
	if !ok {
		return
	}

	match, err := h.matchService.DeclineMatch(r.Context(), req.PetID, req.TargetPetID)
	if err != nil {
		writeServiceError(w, err, "declining match")
		return
	}

	writeJSON(w, http.StatusOK, MatchResponse{Match: match})
}

func (h *MatchHandler) List(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	matches, err := h.matchService.ListAcceptedMatchesForUser(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, err, "listing matches")
		return
	}

	writeJSON(w, http.StatusOK, MatchListResponse{Matches: matches})
}

func (h *MatchHandler) Find(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	petID, err := uuid.Parse(r.URL.Query().Get("pet_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid pet ID")
		return
	}

	matchID, err := h.matchService.FindMatchID(r.Context(), user.ID, petID)
	if errors.Is(err, services.ErrMatchNotFound) {
		writeError(w, http.StatusNotFound, "Could not find a valid match")
		return
	}
	if err != nil {
		writeServiceError(w, err, "finding match")
		return
	}

	writeJSON(w, http.StatusOK, FindMatchResponse{MatchID: matchID})
}
