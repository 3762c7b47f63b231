package store

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"ember-chat/backend/internal/model"
	"ember-chat/backend/internal/stream"
)

// Repository is the slice of the persistence layer the store needs: saving
// a message once it reaches a terminal state.
type Repository interface {
	AddMessage(ctx context.Context, message *model.Message) error
}

// Notifier receives every published update. The API layer implements it on
// top of its SSE server; tests use NotifierFunc.
type Notifier interface {
	Publish(event model.StreamEvent)
}

// NotifierFunc adapts a plain function to the Notifier interface.
type NotifierFunc func(event model.StreamEvent)

func (f NotifierFunc) Publish(event model.StreamEvent) { f(event) }

const persistTimeout = 5 * time.Second

// Store holds the live state of messages that are currently streaming and
// applies every mutation through a single-writer update loop, so concurrent
// sessions for different conversations never interleave partial updates.
// All mutation goes through the exported methods; there is no ambient shared
// state.
type Store struct {
	repo     Repository
	notifier Notifier

	ops       chan func()
	closing   chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	messages  map[string]*model.Message
}

// New creates a store and starts its update loop.
func New(repo Repository, notifier Notifier) *Store {
	s := &Store{
		repo:     repo,
		notifier: notifier,
		ops:      make(chan func()),
		closing:  make(chan struct{}),
		stopped:  make(chan struct{}),
		messages: make(map[string]*model.Message),
	}
	go s.loop()
	return s
}

// Close stops the update loop and waits for it to exit. Operations arriving
// after Close, from sessions that are still winding down, are dropped
// instead of blocking or panicking. Safe to call more than once.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.closing)
	})
	<-s.stopped
}

func (s *Store) loop() {
	defer close(s.stopped)
	for {
		select {
		case op := <-s.ops:
			op()
		case <-s.closing:
			return
		}
	}
}

// do submits an operation to the writer loop and waits for it to apply.
// Returns without running the operation once the store is closing.
func (s *Store) do(op func()) {
	done := make(chan struct{})
	wrapped := func() {
		op()
		close(done)
	}
	select {
	case s.ops <- wrapped:
		<-done
	case <-s.closing:
	}
}

// StartMessage registers a new streaming assistant message as the target of
// a session.
func (s *Store) StartMessage(conversationID, messageID, modelName string) {
	s.do(func() {
		s.messages[messageID] = &model.Message{
			ID:             messageID,
			ConversationID: conversationID,
			Role:           "assistant",
			Model:          modelName,
			IsStreaming:    true,
			CreatedAt:      time.Now().UTC(),
		}
	})
}

// ApplyDelta appends an incremental (content, thinking) pair to the
// addressed message and publishes it to subscribers. Safe to call with an
// empty delta or after the message reached a terminal state; both are
// no-ops.
func (s *Store) ApplyDelta(messageID string, delta stream.Delta) {
	if delta.Empty() {
		return
	}
	s.do(func() {
		msg, ok := s.messages[messageID]
		if !ok || !msg.IsStreaming {
			return
		}
		msg.Content += delta.Content
		msg.Thinking += delta.Thinking

		s.notifier.Publish(model.StreamEvent{
			Kind:           model.EventDelta,
			ConversationID: msg.ConversationID,
			MessageID:      msg.ID,
			Content:        delta.Content,
			Thinking:       delta.Thinking,
		})
	})
}

// FinalizeMessage commits the terminal state: trims both fields, clears the
// streaming flag, persists the message and notifies subscribers. Calling it
// again, or for an unknown message, changes nothing.
func (s *Store) FinalizeMessage(messageID string) {
	s.do(func() {
		msg, ok := s.messages[messageID]
		if !ok || !msg.IsStreaming {
			return
		}
		msg.Content = strings.TrimSpace(msg.Content)
		msg.Thinking = strings.TrimSpace(msg.Thinking)
		msg.IsStreaming = false

		s.persist(msg)
		s.notifier.Publish(model.StreamEvent{
			Kind:           model.EventDone,
			ConversationID: msg.ConversationID,
			MessageID:      msg.ID,
		})
		delete(s.messages, messageID)
	})
}

// FailMessage writes a user-visible error explanation into the message's
// content and commits the terminal state. Partial content generated before
// the failure is kept.
func (s *Store) FailMessage(messageID string, errMsg string) {
	s.do(func() {
		msg, ok := s.messages[messageID]
		if !ok || !msg.IsStreaming {
			return
		}
		if msg.Content != "" {
			msg.Content += "\n\n"
		}
		msg.Content += errMsg
		msg.Content = strings.TrimSpace(msg.Content)
		msg.Thinking = strings.TrimSpace(msg.Thinking)
		msg.IsStreaming = false

		s.persist(msg)
		s.notifier.Publish(model.StreamEvent{
			Kind:           model.EventError,
			ConversationID: msg.ConversationID,
			MessageID:      msg.ID,
			Error:          errMsg,
		})
		delete(s.messages, messageID)
	})
}

// DiscardMessage drops a registered streaming message without persisting it
// or notifying subscribers. Used when a session loses the start race and the
// caller is rejected: the message never existed as far as the client knows.
func (s *Store) DiscardMessage(messageID string) {
	s.do(func() {
		delete(s.messages, messageID)
	})
}

// Get returns a snapshot of a live streaming message.
func (s *Store) Get(messageID string) (model.Message, bool) {
	var (
		snapshot model.Message
		ok       bool
	)
	s.do(func() {
		var msg *model.Message
		msg, ok = s.messages[messageID]
		if ok {
			snapshot = *msg
		}
	})
	return snapshot, ok
}

func (s *Store) persist(msg *model.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.repo.AddMessage(ctx, msg); err != nil {
		slog.Error("CRITICAL: Failed to save assistant message", "message_id", msg.ID, "conversation_id", msg.ConversationID, "error", err)
	}
}
