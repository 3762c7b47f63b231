package model

import (
	"time"
)

// Conversation stores metadata about one chat thread.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UserID    string    `json:"user_id"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message stores a single message in a conversation. While an assistant
// message is being generated, Content and Thinking grow incrementally and
// IsStreaming is true; every terminal path (completed, failed, cancelled)
// must leave IsStreaming false.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Thinking       string    `json:"thinking,omitempty"`
	Model          string    `json:"model,omitempty"`
	IsStreaming    bool      `json:"is_streaming"`
	CreatedAt      time.Time `json:"created_at"`
}

// FullConversation includes the conversation metadata and all its messages
// in insertion order.
type FullConversation struct {
	Conversation
	Messages []Message `json:"messages"`
}

// Event kinds published to UI subscribers while a message streams.
const (
	EventDelta = "message.delta"
	EventDone  = "message.done"
	EventError = "message.error"
)

// StreamEvent is one incremental update published by the store to the UI
// layer. Content and Thinking carry only the delta since the previous event,
// not the accumulated text.
type StreamEvent struct {
	Kind           string `json:"kind"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Content        string `json:"content,omitempty"`
	Thinking       string `json:"thinking,omitempty"`
	Error          string `json:"error,omitempty"`
}
