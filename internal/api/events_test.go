package api_test

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ember-chat/backend/internal/api"
	"ember-chat/backend/internal/model"
)

// TestEventHub_PublishReachesSubscriber opens a real SSE connection against
// the hub and checks that a published delta for the subscribed conversation
// arrives as a `message.delta` event, while another conversation's events do
// not leak into the stream.
func TestEventHub_PublishReachesSubscriber(t *testing.T) {
	hub := api.NewEventHub()
	server := httptest.NewServer(hub)
	defer server.Close()
	defer func() { _ = hub.Shutdown(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/?conversation_id=conv1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	// The subscription registers asynchronously, so publish on a ticker until
	// the reader has seen the event.
	publishDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-publishDone:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				hub.Publish(model.StreamEvent{
					Kind:           model.EventDelta,
					ConversationID: "conv2",
					MessageID:      "other-msg",
					Content:        "other conversation",
				})
				hub.Publish(model.StreamEvent{
					Kind:           model.EventDelta,
					ConversationID: "conv1",
					MessageID:      "msg1",
					Content:        "hello",
				})
			}
		}
	}()

	var sawDeltaEvent bool
	var received strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		received.WriteString(line + "\n")
		if strings.HasPrefix(line, "event:") && strings.Contains(line, model.EventDelta) {
			sawDeltaEvent = true
		}
		if strings.HasPrefix(line, "data:") && strings.Contains(line, "hello") {
			break
		}
	}
	close(publishDone)
	cancel()

	assert.True(t, sawDeltaEvent, "expected a message.delta event type line")
	assert.Contains(t, received.String(), `"conversation_id":"conv1"`)
	assert.NotContains(t, received.String(), "other conversation", "events from other conversations must not reach this subscriber")
}
