package controller

import (
	"encoding/json"
	"net/http"

	"github.com/aibanking/lending-assistant/internal/middleware"
	"github.com/aibanking/lending-assistant/internal/model"
	"github.com/aibanking/lending-assistant/internal/service"
)

// ChatController handles the per-turn chat endpoint
type ChatController struct {
	orchestrator *service.Orchestrator
}

// NewChatController creates a new chat controller
func NewChatController(orchestrator *service.Orchestrator) *ChatController {
	return &ChatController{orchestrator: orchestrator}
}

// chatRequestBody is the wire shape of POST /chat
type chatRequestBody struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

// Chat handles POST /api/v1/chat
func (cc *ChatController) Chat(w http.ResponseWriter, r *http.Request) {
	var body chatRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if body.ConversationID == "" || body.Text == "" {
		RespondWithError(w, r, http.StatusBadRequest, "conversation_id and text are required", nil)
		return
	}

	req := &model.ChatRequest{
		UserID:         middleware.UserID(r),
		ConversationID: body.ConversationID,
		Text:           body.Text,
		RequestID:      middleware.RequestID(r),
	}

	resp, errBody := cc.orchestrator.ProcessTurn(r.Context(), req)
	if errBody != nil {
		status := http.StatusInternalServerError
		if errBody.Error.Kind == model.KindNotFound {
			status = http.StatusNotFound
		}
		RespondWithJSON(w, status, errBody)
		return
	}

	RespondWithJSON(w, http.StatusOK, resp)
}
