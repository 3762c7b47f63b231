package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	app_errors "ember-chat/backend/internal/errors"
	"ember-chat/backend/internal/llm"
)

// State is the lifecycle position of one streaming session.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Opener opens the chunked transport for one generation request. Implemented
// by the llm provider; narrowed here so the controller is testable against a
// fake transport.
type Opener interface {
	OpenStream(ctx context.Context, req *llm.GenerateRequest) (io.ReadCloser, error)
}

// Updater receives the pipeline's output. Implemented by the conversation
// store; every terminal path must go through exactly one of FinalizeMessage
// or FailMessage so the message never stays marked as streaming.
type Updater interface {
	ApplyDelta(messageID string, delta Delta)
	FinalizeMessage(messageID string)
	FailMessage(messageID string, errMsg string)
}

// Handle identifies one in-flight session and carries its cancellation hook.
type Handle struct {
	ID             string
	ConversationID string
	MessageID      string

	cancel context.CancelFunc
	state  atomic.Int32
	done   chan struct{}
}

// State returns the session's current lifecycle state.
func (h *Handle) State() State {
	return State(h.state.Load())
}

// Wait blocks until the session reaches a terminal state.
func (h *Handle) Wait() {
	<-h.done
}

func (h *Handle) setState(s State) {
	h.state.Store(int32(s))
}

// Controller orchestrates streaming sessions end-to-end: it opens the
// request, drives the pipeline chunk by chunk, applies deltas to the store
// and owns the termination decision. At most one session may be active per
// conversation; sessions for different conversations run independently.
type Controller struct {
	opener  Opener
	updater Updater

	openMarker  string
	closeMarker string

	mu     sync.Mutex
	byConv map[string]*Handle
	byID   map[string]*Handle
}

func NewController(opener Opener, updater Updater, openMarker, closeMarker string) *Controller {
	return &Controller{
		opener:      opener,
		updater:     updater,
		openMarker:  openMarker,
		closeMarker: closeMarker,
		byConv:      make(map[string]*Handle),
		byID:        make(map[string]*Handle),
	}
}

// Start begins a session for the given conversation and target message.
// Returns ErrStreamActive if the conversation already has a live session.
// The returned handle is already in the connecting state; the transport is
// driven on a separate goroutine.
func (c *Controller) Start(ctx context.Context, conversationID, messageID string, req *llm.GenerateRequest) (*Handle, error) {
	ctx, cancel := context.WithCancel(ctx)

	h := &Handle{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		MessageID:      messageID,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
	h.setState(StateConnecting)

	c.mu.Lock()
	if existing, ok := c.byConv[conversationID]; ok && !existing.State().Terminal() {
		c.mu.Unlock()
		cancel()
		return nil, app_errors.ErrStreamActive
	}
	c.byConv[conversationID] = h
	c.byID[h.ID] = h
	c.mu.Unlock()

	go c.run(ctx, h, req)
	return h, nil
}

// Cancel aborts the session at the transport level. The in-flight request's
// context is cancelled, which closes the underlying connection; any chunks
// still buffered are discarded and the message is finalized with whatever
// content had already been committed.
func (c *Controller) Cancel(sessionID string) error {
	c.mu.Lock()
	h, ok := c.byID[sessionID]
	c.mu.Unlock()
	if !ok {
		return app_errors.ErrNotFound
	}
	h.cancel()
	return nil
}

// Busy reports whether the conversation has a live session.
func (c *Controller) Busy(conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.byConv[conversationID]
	return ok && !h.State().Terminal()
}

func (c *Controller) run(ctx context.Context, h *Handle, req *llm.GenerateRequest) {
	defer close(h.done)
	defer h.cancel()
	defer c.release(h)

	sess := NewSession(h.ConversationID, h.MessageID, c.openMarker, c.closeMarker)

	body, err := c.opener.OpenStream(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			c.finishCancelled(h)
			return
		}
		c.finishFailed(h, "The model endpoint could not be reached: "+err.Error())
		return
	}
	defer body.Close()

	h.setState(StateStreaming)
	slog.Debug("Stream session connected", "session_id", h.ID, "message_id", h.MessageID)

	buf := make([]byte, 4096)
	for {
		n, readErr := body.Read(buf)
		// Cancellation wins over whatever the read returned: a chunk the
		// transport had already buffered when Cancel was called must not
		// reach the pipeline.
		if ctx.Err() != nil {
			c.finishCancelled(h)
			return
		}
		if n > 0 {
			delta, done := sess.Feed(buf[:n])
			c.updater.ApplyDelta(h.MessageID, delta)
			if done {
				c.finishCompleted(h, sess)
				return
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				// Natural stream end without a terminal envelope.
				c.finishCompleted(h, sess)
			} else {
				c.finishFailed(h, "The connection to the model was interrupted: "+readErr.Error())
			}
			return
		}
	}
}

func (c *Controller) finishCompleted(h *Handle, sess *Session) {
	c.updater.ApplyDelta(h.MessageID, sess.Finalize())
	c.updater.FinalizeMessage(h.MessageID)
	h.setState(StateCompleted)
	slog.Info("Stream session completed", "session_id", h.ID, "message_id", h.MessageID)
}

func (c *Controller) finishFailed(h *Handle, explanation string) {
	c.updater.FailMessage(h.MessageID, explanation)
	h.setState(StateFailed)
	slog.Warn("Stream session failed", "session_id", h.ID, "message_id", h.MessageID, "error", explanation)
}

// finishCancelled discards the pipeline state: the message keeps only what
// had already been committed before cancellation was requested.
func (c *Controller) finishCancelled(h *Handle) {
	c.updater.FinalizeMessage(h.MessageID)
	h.setState(StateCancelled)
	slog.Info("Stream session cancelled", "session_id", h.ID, "message_id", h.MessageID)
}

func (c *Controller) release(h *Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.byConv[h.ConversationID] == h {
		delete(c.byConv, h.ConversationID)
	}
	delete(c.byID, h.ID)
}
