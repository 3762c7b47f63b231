package repository

import (
	"context"

	"ember-chat/backend/internal/model"
)

// Repository defines the interface for data storage operations.
// This interface makes it easy to switch database implementations.
type Repository interface {
	CreateConversation(ctx context.Context, conversation *model.Conversation) error
	GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error)
	GetConversations(ctx context.Context, userID string) ([]*model.Conversation, error)
	UpdateConversationTitle(ctx context.Context, conversationID, newTitle string) error
	DeleteConversation(ctx context.Context, conversationID string) error

	AddMessage(ctx context.Context, message *model.Message) error
	GetMessagesByConversationID(ctx context.Context, conversationID string) ([]model.Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
}
