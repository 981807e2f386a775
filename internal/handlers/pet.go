package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/HammerMeetNail/petpals/internal/models"
	"github.com/HammerMeetNail/petpals/internal/services"
)

type PetHandler struct {
	petService services.PetServiceInterface
}

func NewPetHandler(petService services.PetServiceInterface) *PetHandler {
	return &PetHandler{petService: petService}
}

type PetResponse struct {
	Pet *models.Pet `json:"pet"`
}

type PetListResponse struct {
	Pets []models.Pet `json:"pets"`
}

type PetDeleteResponse struct {
	Deletion *models.PetDeletion `json:"deletion"`
	Message  string              `json:"message,omitempty"`
}

func (h *PetHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var input models.PetInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	pet, err := h.petService.Create(r.Context(), user.ID, input)
	if err != nil {
		writeServiceError(w, err, "creating pet")
		return
	}

	writeJSON(w, http.StatusCreated, PetResponse{Pet: pet})
}

func (h *PetHandler) List(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	pets, err := h.petService.ListByOwner(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, err, "listing pets")
		return
	}

	writeJSON(w, http.StatusOK, PetListResponse{Pets: pets})
}

// Get returns any pet by id; pet profiles are visible to every signed-in
// user so they can be browsed and matched.
func (h *PetHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	petID, ok := parsePathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid pet ID")
		return
	}

	pet, err := h.petService.Get(r.Context(), petID)
	if err != nil {
		writeServiceError(w, err, "getting pet")
		return
	}

	writeJSON(w, http.StatusOK, PetResponse{Pet: pet})
}

func (h *PetHandler) Update(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	petID, ok := parsePathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid pet ID")
		return
	}

	var input models.PetInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	pet, err := h.petService.Update(r.Context(), user.ID, petID, input)
	if err != nil {
		writeServiceError(w, err, "updating pet")
		return
	}

	writeJSON(w, http.StatusOK, PetResponse{Pet: pet})
}

func (h *PetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	petID, ok := parsePathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid pet ID")
		return
	}

	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid force parameter")
			return
		}
		force = parsed
	}

	deletion, err := h.petService.RequestDelete(r.Context(), user.ID, petID, force)
	if err != nil {
		writeServiceError(w, err, "deleting pet")
		return
	}

	if deletion.Outcome == models.DeleteOutcomeBlockedHasMatches {
		writeJSON(w, http.StatusConflict, PetDeleteResponse{
			Deletion: deletion,
			Message:  "This pet has active matches. Delete again with force=true to notify them and remove the pet.",
		})
		return
	}

	resp := PetDeleteResponse{Deletion: deletion}
	if len(deletion.FailedMatchIDs) > 0 {
		resp.Message = "Pet deleted, but some matches could not be notified"
	}
	writeJSON(w, http.StatusOK, resp)
}
