package handlers

import (
	"net/http"
	"strconv"

	"github.com/HammerMeetNail/petpals/internal/geo"
	"github.com/HammerMeetNail/petpals/internal/models"
	"github.com/HammerMeetNail/petpals/internal/services"
)

type DiscoveryHandler struct {
	discoveryService services.DiscoveryServiceInterface
}

func NewDiscoveryHandler(discoveryService services.DiscoveryServiceInterface) *DiscoveryHandler {
	return &DiscoveryHandler{discoveryService: discoveryService}
}

type DiscoveryResponse struct {
	Candidates []models.Candidate `json:"candidates"`
	Count      int                `json:"count"`
}

func (h *DiscoveryHandler) Discover(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	requester, ok := parseLocation(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid location: provide both lat and lng")
		return
	}

	queue, err := h.discoveryService.BuildForUser(r.Context(), user.ID, requester)
	if err != nil {
		writeServiceError(w, err, "building discovery queue")
		return
	}

	writeJSON(w, http.StatusOK, DiscoveryResponse{Candidates: queue.Items(), Count: queue.Len()})
}

// parseLocation reads the optional lat/lng query pair. Range checks are left
// to the discovery service.
func parseLocation(r *http.Request) (*geo.Point, bool) {
	latRaw := r.URL.Query().Get("lat")
	lngRaw := r.URL.Query().Get("lng")
	if latRaw == "" && lngRaw == "" {
		return nil, true
	}
	if latRaw == "" || lngRaw == "" {
		return nil, false
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return nil, false
	}
	lng, err := strconv.ParseFloat(lngRaw, 64)
	if err != nil {
		return nil, false
	}
	return &geo.Point{Latitude: lat, Longitude: lng}, true
}
