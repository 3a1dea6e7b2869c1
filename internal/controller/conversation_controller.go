package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/aibanking/lending-assistant/internal/middleware"
	"github.com/aibanking/lending-assistant/internal/model"
	"github.com/aibanking/lending-assistant/internal/service"
)

// ConversationController handles the visible-window endpoints
type ConversationController struct {
	manager *service.ConversationManager
	memory  *service.ConversationMemory
}

// NewConversationController creates a new conversation controller
func NewConversationController(manager *service.ConversationManager, memory *service.ConversationMemory) *ConversationController {
	return &ConversationController{manager: manager, memory: memory}
}

type createConversationBody struct {
	Title                string `json:"title"`
	ActiveConversationID string `json:"active_conversation_id,omitempty"`
}

// Create handles POST /api/v1/conversations
func (cc *ConversationController) Create(w http.ResponseWriter, r *http.Request) {
	var body createConversationBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := cc.manager.Create(r.Context(), middleware.UserID(r), body.Title, body.ActiveConversationID)
	if err != nil {
		RespondWithError(w, r, http.StatusInternalServerError, "Failed to create conversation", err)
		return
	}

	RespondWithJSON(w, http.StatusCreated, result)
}

// List handles GET /api/v1/conversations
func (cc *ConversationController) List(w http.ResponseWriter, r *http.Request) {
	conversations, err := cc.manager.ListVisible(r.Context(), middleware.UserID(r))
	if err != nil {
		RespondWithError(w, r, http.StatusInternalServerError, "Failed to list conversations", err)
		return
	}

	RespondWithJSON(w, http.StatusOK, map[string]any{
		"conversations": conversations,
		"count":         len(conversations),
	})
}

// Open handles POST /api/v1/conversations/{conversationID}/open
func (cc *ConversationController) Open(w http.ResponseWriter, r *http.Request) {
	conversationID := mux.Vars(r)["conversationID"]

	conv, err := cc.manager.Open(r.Context(), conversationID)
	if err != nil {
		var appErr *model.AppError
		if errors.As(err, &appErr) && appErr.Kind == model.KindNotFound {
			RespondWithError(w, r, http.StatusNotFound, "Conversation not found", err)
			return
		}
		RespondWithError(w, r, http.StatusInternalServerError, "Failed to open conversation", err)
		return
	}

	RespondWithJSON(w, http.StatusOK, conv)
}

// Messages handles GET /api/v1/conversations/{conversationID}/messages
func (cc *ConversationController) Messages(w http.ResponseWriter, r *http.Request) {
	conversationID := mux.Vars(r)["conversationID"]

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	messages, err := cc.memory.GetMessagesPaginated(r.Context(), conversationID, limit, offset)
	if err != nil {
		RespondWithError(w, r, http.StatusInternalServerError, "Failed to load messages", err)
		return
	}

	RespondWithJSON(w, http.StatusOK, map[string]any{
		"messages": messages,
		"count":    len(messages),
	})
}

// Config handles GET /api/v1/config
func (cc *ConversationController) Config(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, cc.manager.Config())
}
