package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/HammerMeetNail/petpals/internal/models"
	"github.com/HammerMeetNail/petpals/internal/services"
)

type MessageHandler struct {
	messageService services.MessageServiceInterface
	matchService   services.MatchServiceInterface
}

func NewMessageHandler(messageService services.MessageServiceInterface, matchService services.MatchServiceInterface) *MessageHandler {
	return &MessageHandler{messageService: messageService, matchService: matchService}
}

type MessageListResponse struct {
	Messages []models.Message `json:"messages"`
}

type MessageResponse struct {
	Message *models.Message `json:"message"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

// loadMatch resolves the {id} path value to a match the caller takes part
// in. It writes the error response itself.
func (h *MessageHandler) loadMatch(w http.ResponseWriter, r *http.Request, user *models.User) (*models.Match, bool) {
	matchID, ok := parsePathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid match ID")
		return nil, false
	}
	match, err := h.matchService.MatchForUser(r.Context(), user.ID, matchID)
	if err != nil {
		writeServiceError(w, err, "loading match")
		return nil, false
	}
	return match, true
}

func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	match, ok := h.loadMatch(w, r, user)
	if !ok {
		return
	}

	messages, err := h.messageService.ListMessages(r.Context(), match.ID)
	if err != nil {
		writeServiceError(w, err, "listing messages")
		return
	}

	writeJSON(w, http.StatusOK, MessageListResponse{Messages: messages})
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	match, ok := h.loadMatch(w, r, user)
	if !ok {
		return
	}
	if match.Status != models.MatchStatusAccepted {
		writeError(w, http.StatusConflict, "Messages can only be sent in accepted matches")
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	msg, err := h.messageService.Append(r.Context(), match.ID, user.ID, req.Content)
	if err != nil {
		writeServiceError(w, err, "sending message")
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{Message: msg})
}
