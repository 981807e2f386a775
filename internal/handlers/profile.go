package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/HammerMeetNail/petpals/internal/models"
	"github.com/HammerMeetNail/petpals/internal/services"
)

type ProfileHandler struct {
	profileService services.ProfileServiceInterface
}

func NewProfileHandler(profileService services.ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{profileService: profileService}
}

type ProfileResponse struct {
	Profile     *models.Profile `json:"profile"`
	DisplayName string          `json:"display_name"`
}

type UpdateProfileRequest struct {
	FullName string `json:"full_name"`
}

func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	profile, err := h.profileService.Get(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, err, "getting profile")
		return
	}

	writeJSON(w, http.StatusOK, ProfileResponse{Profile: profile, DisplayName: profile.DisplayName()})
}

func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	profile, err := h.profileService.UpdateName(r.Context(), user.ID, req.FullName)
	if err != nil {
		writeServiceError(w, err, "updating profile")
		return
	}

	writeJSON(w, http.StatusOK, ProfileResponse{Profile: profile, DisplayName: profile.DisplayName()})
}
