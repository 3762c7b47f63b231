package stream

import "strings"

// Session is the per-request pipeline state: byte decoder, line framer and
// segment splitter threaded together, plus the cumulative raw token text for
// re-derivation and debugging. It is a plain value object driven by its
// owner; each call's result depends only on the state left by the previous
// call, so the whole pipeline is testable without any transport.
type Session struct {
	ConversationID string
	MessageID      string

	decoder  ByteDecoder
	framer   LineFramer
	splitter *SegmentSplitter

	raw       strings.Builder
	done      bool
	finalized bool
}

// NewSession creates the pipeline state for one in-flight request targeting
// the given message.
func NewSession(conversationID, messageID, openMarker, closeMarker string) *Session {
	return &Session{
		ConversationID: conversationID,
		MessageID:      messageID,
		splitter:       NewSegmentSplitter(openMarker, closeMarker),
	}
}

// Feed runs one raw transport chunk through the pipeline and returns the
// incremental delta plus whether the terminal envelope has been seen.
// Malformed records inside the chunk are dropped without effect. After
// Finalize, Feed is a no-op.
func (s *Session) Feed(chunk []byte) (Delta, bool) {
	if s.finalized {
		return Delta{}, true
	}

	var d Delta
	for _, line := range s.framer.Frame(s.decoder.Decode(chunk)) {
		d = d.Merge(s.consume(line))
	}
	return d, s.done
}

// Finalize flushes every pipeline stage and returns the last delta: a
// trailing unterminated record is parsed if possible, and a withheld
// partial-marker suffix is released as literal text. Idempotent; subsequent
// calls return an empty delta.
func (s *Session) Finalize() Delta {
	if s.finalized {
		return Delta{}
	}
	s.finalized = true

	var d Delta
	// The decoder may hold an incomplete rune and the framer a partial final
	// record; push the former through the latter before flushing.
	for _, line := range s.framer.Frame(s.decoder.Flush()) {
		d = d.Merge(s.consume(line))
	}
	if line, ok := s.framer.Flush(); ok {
		d = d.Merge(s.consume(line))
	}
	d = d.Merge(s.splitter.Flush())
	return d
}

// Done reports whether the terminal envelope has arrived.
func (s *Session) Done() bool {
	return s.done
}

// Raw returns the concatenation of all token fragments seen so far, markers
// included.
func (s *Session) Raw() string {
	return s.raw.String()
}

func (s *Session) consume(line string) Delta {
	env, ok := ParseEnvelope(line)
	if !ok {
		return Delta{}
	}
	s.raw.WriteString(env.Response)
	if env.Done {
		s.done = true
	}
	return s.splitter.Split(env.Response)
}
