package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tmaxmax/go-sse"

	"ember-chat/backend/internal/model"
)

// EventHub is the subscription point through which the conversation store
// publishes per-message deltas to the UI layer. Clients open a single SSE
// connection per conversation (`GET /api/v1/events?conversation_id=...`) and
// receive `message.delta`, `message.done` and `message.error` events.
type EventHub struct {
	srv *sse.Server
}

func NewEventHub() *EventHub {
	return &EventHub{
		srv: &sse.Server{
			OnSession: func(s *sse.Session) (sse.Subscription, bool) {
				topics := []string{sse.DefaultTopic}

				// Clients narrow their subscription to one conversation so a
				// busy stream elsewhere doesn't flood them.
				if conversationID := s.Req.URL.Query().Get("conversation_id"); conversationID != "" {
					topics = append(topics, conversationTopic(conversationID))
				}

				return sse.Subscription{
					Client:      s,
					LastEventID: s.LastEventID,
					Topics:      topics,
				}, true
			},
		},
	}
}

// Publish implements store.Notifier: each stream event goes out on its
// conversation's topic.
func (h *EventHub) Publish(event model.StreamEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal stream event", "error", err)
		return
	}

	msg := &sse.Message{Type: sse.Type(event.Kind)}
	msg.AppendData(string(data))

	if err := h.srv.Publish(msg, conversationTopic(event.ConversationID)); err != nil {
		slog.Warn("Failed to publish stream event", "conversation_id", event.ConversationID, "error", err)
	}
}

func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.srv.ServeHTTP(w, r)
}

// Shutdown closes all subscriber connections.
func (h *EventHub) Shutdown(ctx context.Context) error {
	return h.srv.Shutdown(ctx)
}

func conversationTopic(conversationID string) string {
	return "conversation:" + conversationID
}
