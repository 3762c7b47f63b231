package interfaces

import (
	"context"

	"ember-chat/backend/internal/llm"
	"ember-chat/backend/internal/model"
	"ember-chat/backend/internal/service"
)

// This file defines the interfaces for our core services.
// Depending on these interfaces, instead of concrete implementations, allows for
// decoupling (e.g., API layer from Service layer) and easier testing via mocking.

// ChatService defines the contract for chat-related business logic.
type ChatService interface {
	UpdateConversationTitle(ctx context.Context, conversationID, newTitle string) error
	DeleteConversation(ctx context.Context, conversationID string) error
	ListConversations(ctx context.Context) ([]*model.Conversation, error)
	GetFullConversation(ctx context.Context, conversationID string) (*model.FullConversation, error)
	SendMessage(ctx context.Context, conversationID string, req *service.SendMessageRequest) (*service.SendResult, error)
	RegenerateMessage(ctx context.Context, conversationID, messageID string) (*service.SendResult, error)
	CancelStream(sessionID string) error
}

// ModelService defines the contract for model management logic.
type ModelService interface {
	List(ctx context.Context) (*llm.ListModelsResponse, error)
	Pull(ctx context.Context, req *llm.PullModelRequest, ch chan<- llm.PullStatus) error
	Delete(ctx context.Context, req *llm.DeleteModelRequest) error
	Show(ctx context.Context, req *llm.ShowModelRequest) (*llm.ModelInfo, error)
	Switch(ctx context.Context, from, to string) error
}

// SettingsService defines the contract for managing application settings.
type SettingsService interface {
	InitAndGet(ctx context.Context, defaultSystemPrompt string) (*service.Settings, error)
	Get(ctx context.Context) (*service.Settings, error)
	Save(ctx context.Context, settings *service.Settings) error
}
