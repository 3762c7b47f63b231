package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	app_errors "ember-chat/backend/internal/errors"
	"ember-chat/backend/internal/llm"
	"ember-chat/backend/internal/model"
	"ember-chat/backend/internal/repository"
	"ember-chat/backend/internal/store"
	"ember-chat/backend/internal/stream"
)

const defaultUserID = "default-user"

// SessionStarter is the slice of the stream controller the chat service
// drives: start a session, cancel it, and probe for a live one.
type SessionStarter interface {
	Start(ctx context.Context, conversationID, messageID string, req *llm.GenerateRequest) (*stream.Handle, error)
	Cancel(sessionID string) error
	Busy(conversationID string) bool
}

// SendMessageRequest is the structure for a new message request from the client.
type SendMessageRequest struct {
	Content string `json:"content" validate:"required,min=1"`
	Model   string `json:"model"`
}

// SendResult identifies the resources created by a send: the conversation
// (possibly new), the streaming assistant message and the session handle the
// client can cancel.
type SendResult struct {
	ConversationID string `json:"conversation_id"`
	UserMessageID  string `json:"user_message_id"`
	MessageID      string `json:"message_id"`
	SessionID      string `json:"session_id"`
}

type ChatService struct {
	repo      repository.Repository
	llm       llm.Provider
	settings  *SettingsService
	store     *store.Store
	sessions  SessionStarter
	keepAlive string
}

func NewChatService(repo repository.Repository, llmProvider llm.Provider, settings *SettingsService, liveStore *store.Store, sessions SessionStarter, keepAlive string) *ChatService {
	return &ChatService{
		repo:      repo,
		llm:       llmProvider,
		settings:  settings,
		store:     liveStore,
		sessions:  sessions,
		keepAlive: keepAlive,
	}
}

// UpdateConversationTitle handles the logic for manually renaming a conversation.
func (s *ChatService) UpdateConversationTitle(ctx context.Context, conversationID, newTitle string) error {
	if newTitle == "" {
		return fmt.Errorf("%w: title cannot be empty", app_errors.ErrValidation)
	}
	if err := s.repo.UpdateConversationTitle(ctx, conversationID, newTitle); err != nil {
		if err == repository.ErrNotFound {
			return app_errors.ErrNotFound
		}
		return err
	}
	return nil
}

// DeleteConversation removes a conversation and all its messages.
func (s *ChatService) DeleteConversation(ctx context.Context, conversationID string) error {
	slog.Info("Deleting conversation", "conversation_id", conversationID)
	return s.repo.DeleteConversation(ctx, conversationID)
}

// ListConversations retrieves all conversations for the local user.
func (s *ChatService) ListConversations(ctx context.Context) ([]*model.Conversation, error) {
	return s.repo.GetConversations(ctx, defaultUserID)
}

// GetFullConversation retrieves a conversation's metadata and all its messages.
func (s *ChatService) GetFullConversation(ctx context.Context, conversationID string) (*model.FullConversation, error) {
	conversation, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, app_errors.ErrNotFound
		}
		return nil, fmt.Errorf("could not get conversation: %w", err)
	}
	messages, err := s.repo.GetMessagesByConversationID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("could not get messages: %w", err)
	}
	return &model.FullConversation{Conversation: *conversation, Messages: messages}, nil
}

// SendMessage processes a new user message: it persists it, registers the
// streaming assistant message in the live store and starts an ingestion
// session against the inference endpoint. The stream itself flows to the UI
// through the store's subscription point; the caller only gets the handles.
func (s *ChatService) SendMessage(ctx context.Context, conversationID string, req *SendMessageRequest) (*SendResult, error) {
	if conversationID != "" && s.sessions.Busy(conversationID) {
		return nil, app_errors.ErrStreamActive
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not load application settings: %w", err)
	}
	modelName := req.Model
	if modelName == "" {
		modelName = settings.MainModel
	}

	// Step 1: get or create the conversation.
	isNew := conversationID == ""
	var conversation *model.Conversation
	if isNew {
		conversation = &model.Conversation{
			ID:        uuid.NewString(),
			UserID:    defaultUserID,
			Title:     truncate(req.Content, 50),
			Model:     modelName,
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		}
		if err := s.repo.CreateConversation(ctx, conversation); err != nil {
			return nil, fmt.Errorf("could not create conversation: %w", err)
		}
	} else {
		conversation, err = s.repo.GetConversation(ctx, conversationID)
		if err != nil {
			if err == repository.ErrNotFound {
				return nil, app_errors.ErrNotFound
			}
			return nil, fmt.Errorf("could not find conversation: %w", err)
		}
	}

	// Step 2: save the user's message.
	userMessage := &model.Message{
		ID:             uuid.NewString(),
		ConversationID: conversation.ID,
		Role:           "user",
		Content:        req.Content,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.repo.AddMessage(ctx, userMessage); err != nil {
		return nil, fmt.Errorf("could not save user message: %w", err)
	}

	// Step 3: build the prompt from the conversation history.
	history, err := s.repo.GetMessagesByConversationID(ctx, conversation.ID)
	if err != nil {
		slog.Warn("Could not load message history, prompting with the new message only.", "conversation_id", conversation.ID, "error", err)
		history = []model.Message{*userMessage}
	}

	llmReq := &llm.GenerateRequest{
		Model:     modelName,
		Prompt:    buildPrompt(history),
		System:    settings.SystemPrompt,
		Stream:    true,
		KeepAlive: llm.KeepAliveDuration(s.keepAlive),
	}

	// Step 4: register the assistant message and start the session. The
	// session must outlive the HTTP request that triggered it, so it runs on
	// a context detached from the caller's.
	assistantID := uuid.NewString()
	s.store.StartMessage(conversation.ID, assistantID, modelName)

	handle, err := s.sessions.Start(context.WithoutCancel(ctx), conversation.ID, assistantID, llmReq)
	if err != nil {
		if errors.Is(err, app_errors.ErrStreamActive) {
			// Lost the race against a concurrent send after the pre-check:
			// the client gets a 409, so no failed assistant message may be
			// left behind for a request that was rejected.
			s.store.DiscardMessage(assistantID)
			return nil, err
		}
		s.store.FailMessage(assistantID, "Could not start the response stream.")
		return nil, err
	}

	if isNew {
		go s.generateTitle(context.Background(), conversation.ID, settings.SupportModel, req.Content)
	}

	return &SendResult{
		ConversationID: conversation.ID,
		UserMessageID:  userMessage.ID,
		MessageID:      assistantID,
		SessionID:      handle.ID,
	}, nil
}

// RegenerateMessage re-runs the model for an existing assistant message. The
// original answer is removed from the conversation and a fresh streaming
// session produces its replacement from the same point in the transcript.
func (s *ChatService) RegenerateMessage(ctx context.Context, conversationID, messageID string) (*SendResult, error) {
	if s.sessions.Busy(conversationID) {
		return nil, app_errors.ErrStreamActive
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not load application settings: %w", err)
	}

	conversation, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, app_errors.ErrNotFound
		}
		return nil, fmt.Errorf("could not find conversation: %w", err)
	}

	history, err := s.repo.GetMessagesByConversationID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("could not get messages: %w", err)
	}

	idx := -1
	for i, msg := range history {
		if msg.ID == messageID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, app_errors.ErrNotFound
	}
	original := history[idx]
	if original.Role != "assistant" {
		return nil, fmt.Errorf("%w: only assistant messages can be regenerated", app_errors.ErrValidation)
	}

	modelName := original.Model
	if modelName == "" {
		modelName = conversation.Model
	}
	if modelName == "" {
		modelName = settings.MainModel
	}

	// The old answer leaves the transcript before the prompt is rebuilt, so
	// the model never sees its previous attempt.
	if err := s.repo.DeleteMessage(ctx, messageID); err != nil {
		return nil, fmt.Errorf("could not remove the original message: %w", err)
	}

	llmReq := &llm.GenerateRequest{
		Model:     modelName,
		Prompt:    buildPrompt(history[:idx]),
		System:    settings.SystemPrompt,
		Stream:    true,
		KeepAlive: llm.KeepAliveDuration(s.keepAlive),
	}

	assistantID := uuid.NewString()
	s.store.StartMessage(conversationID, assistantID, modelName)

	handle, err := s.sessions.Start(context.WithoutCancel(ctx), conversationID, assistantID, llmReq)
	if err != nil {
		if errors.Is(err, app_errors.ErrStreamActive) {
			s.store.DiscardMessage(assistantID)
			return nil, err
		}
		s.store.FailMessage(assistantID, "Could not start the response stream.")
		return nil, err
	}

	return &SendResult{
		ConversationID: conversationID,
		MessageID:      assistantID,
		SessionID:      handle.ID,
	}, nil
}

// CancelStream aborts an in-flight session at the transport level.
func (s *ChatService) CancelStream(sessionID string) error {
	return s.sessions.Cancel(sessionID)
}

// generateTitle creates a title for a new conversation from its opening message.
func (s *ChatService) generateTitle(ctx context.Context, conversationID, supportModel, userQuery string) {
	if supportModel == "" {
		return
	}
	slog.Debug("Generating title for conversation", "conversation_id", conversationID)

	req := &llm.GenerateRequest{
		Model: supportModel,
		System: "You are an expert at creating short, concise titles for conversations. " +
			"Respond with only the title, and nothing else.",
		Prompt: fmt.Sprintf("What would be a good title for a conversation starting with the following message?\n\n---\n%s\n---",
			truncate(userQuery, 200)),
	}
	resp, err := s.llm.Generate(ctx, req)
	if err != nil {
		slog.Warn("Failed to generate title", "conversation_id", conversationID, "error", err)
		return
	}

	newTitle := strings.TrimSpace(resp.Response)
	newTitle = strings.Trim(newTitle, `"'`)
	if newTitle == "" {
		return
	}

	if err := s.repo.UpdateConversationTitle(ctx, conversationID, newTitle); err != nil {
		slog.Warn("Failed to update conversation with generated title", "conversation_id", conversationID, "error", err)
	} else {
		slog.Info("Updated conversation title", "conversation_id", conversationID, "title", newTitle)
	}
}

// buildPrompt renders the history as a plain transcript for the /api/generate
// prompt field.
func buildPrompt(history []model.Message) string {
	var b strings.Builder
	for _, msg := range history {
		switch msg.Role {
		case "user":
			b.WriteString("User: ")
		case "assistant":
			b.WriteString("Assistant: ")
		default:
			continue
		}
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	b.WriteString("Assistant:")
	return b.String()
}

// truncate shortens a string to a specified number of runes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
