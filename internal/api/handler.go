package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	app_errors "ember-chat/backend/internal/errors"
	"ember-chat/backend/internal/interfaces"
	"ember-chat/backend/internal/service"
)

// ChatHandler handles HTTP requests for conversations, messages and settings.
type ChatHandler struct {
	chat     interfaces.ChatService
	settings interfaces.SettingsService
}

func NewChatHandler(chat interfaces.ChatService, settings interfaces.SettingsService) *ChatHandler {
	return &ChatHandler{chat: chat, settings: settings}
}

// GetSettings godoc
// @Summary      Get application settings
// @Tags         Settings
// @Produce      json
// @Success      200  {object}  service.Settings
// @Failure      500  {object}  ErrorResponse
// @Router       /v1/settings [get]
func (h *ChatHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.Get(r.Context())
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, settings)
}

// UpdateSettings godoc
// @Summary      Update application settings
// @Tags         Settings
// @Accept       json
// @Produce      json
// @Param        settings  body  service.Settings  true  "New settings"
// @Success      200  {object}  StatusResponse
// @Failure      400  {object}  ErrorResponse
// @Router       /v1/settings [post]
func (h *ChatHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings service.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		respondWithError(w, fmt.Errorf("%w: invalid request payload", app_errors.ErrValidation))
		return
	}
	if err := h.settings.Save(r.Context(), &settings); err != nil {
		respondWithError(w, fmt.Errorf("%w: %s", app_errors.ErrValidation, err.Error()))
		return
	}
	respondWithJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// GetConversations godoc
// @Summary      List conversations
// @Tags         Conversations
// @Produce      json
// @Success      200  {array}  model.Conversation
// @Failure      500  {object}  ErrorResponse
// @Router       /v1/conversations [get]
func (h *ChatHandler) GetConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := h.chat.ListConversations(r.Context())
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, conversations)
}

// GetConversation godoc
// @Summary      Get a conversation with all its messages
// @Tags         Conversations
// @Produce      json
// @Param        conversationID  path  string  true  "Conversation ID"
// @Success      200  {object}  model.FullConversation
// @Failure      404  {object}  ErrorResponse
// @Router       /v1/conversations/{conversationID} [get]
func (h *ChatHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	fullConversation, err := h.chat.GetFullConversation(r.Context(), conversationID)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, fullConversation)
}

// UpdateConversationTitle godoc
// @Summary      Rename a conversation
// @Tags         Conversations
// @Accept       json
// @Produce      json
// @Param        conversationID  path  string              true  "Conversation ID"
// @Param        title           body  UpdateTitleRequest  true  "New title"
// @Success      200  {object}  StatusResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /v1/conversations/{conversationID}/title [put]
func (h *ChatHandler) UpdateConversationTitle(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var req UpdateTitleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, fmt.Errorf("%w: invalid request payload", app_errors.ErrValidation))
		return
	}
	if err := validateRequest(req); err != nil {
		respondWithError(w, err)
		return
	}

	if err := h.chat.UpdateConversationTitle(r.Context(), conversationID, req.Title); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// DeleteConversation godoc
// @Summary      Delete a conversation
// @Tags         Conversations
// @Produce      json
// @Param        conversationID  path  string  true  "Conversation ID"
// @Success      200  {object}  StatusResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /v1/conversations/{conversationID} [delete]
func (h *ChatHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	if err := h.chat.DeleteConversation(r.Context(), conversationID); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// SendMessageBody is the request DTO for starting a new stream. An empty
// conversation_id starts a fresh conversation.
type SendMessageBody struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content" validate:"required,min=1"`
	Model          string `json:"model"`
}

// SendMessage godoc
// @Summary      Send a message and start streaming the response
// @Description  Persists the user message and starts an ingestion session. The
// @Description  response body only carries the created identifiers; the answer
// @Description  itself is delivered incrementally through the events endpoint.
// @Tags         Messages
// @Accept       json
// @Produce      json
// @Param        message  body  SendMessageBody  true  "Message to send"
// @Success      202  {object}  service.SendResult
// @Failure      400  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse  "A stream is already active for this conversation"
// @Router       /v1/messages [post]
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var body SendMessageBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, fmt.Errorf("%w: invalid request payload", app_errors.ErrValidation))
		return
	}
	if err := validateRequest(body); err != nil {
		respondWithError(w, err)
		return
	}

	result, err := h.chat.SendMessage(r.Context(), body.ConversationID, &service.SendMessageRequest{
		Content: body.Content,
		Model:   body.Model,
	})
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, result)
}

// RegenerateMessage godoc
// @Summary      Regenerate an assistant message
// @Description  Removes the existing answer and streams a replacement from
// @Description  the same point in the conversation.
// @Tags         Messages
// @Produce      json
// @Param        conversationID  path  string  true  "Conversation ID"
// @Param        messageID       path  string  true  "Assistant message ID to replace"
// @Success      202  {object}  service.SendResult
// @Failure      400  {object}  ErrorResponse  "The message is not an assistant message"
// @Failure      404  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse  "A stream is already active for this conversation"
// @Router       /v1/conversations/{conversationID}/messages/{messageID}/regenerate [post]
func (h *ChatHandler) RegenerateMessage(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	messageID := chi.URLParam(r, "messageID")

	result, err := h.chat.RegenerateMessage(r.Context(), conversationID, messageID)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, result)
}

// CancelStream godoc
// @Summary      Cancel an in-flight stream
// @Description  Aborts the underlying request to the model endpoint. The
// @Description  message keeps whatever content had been generated so far.
// @Tags         Messages
// @Produce      json
// @Param        sessionID  path  string  true  "Session ID"
// @Success      200  {object}  StatusResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /v1/streams/{sessionID} [delete]
func (h *ChatHandler) CancelStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.chat.CancelStream(sessionID); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, StatusResponse{Status: "cancelled"})
}
