package stream

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// envelopeLine renders one wire record the way the inference endpoint does.
func envelopeLine(t *testing.T, response string, done bool) string {
	t.Helper()
	data, err := json.Marshal(map[string]any{"response": response, "done": done})
	require.NoError(t, err)
	return string(data) + "\n"
}

// feedAll pushes the whole wire payload through a session in chunks of the
// given size and returns the accumulated delta plus the finalize delta.
func feedAll(t *testing.T, sess *Session, wire string, chunkSize int) Delta {
	t.Helper()
	var acc Delta
	for i := 0; i < len(wire); i += chunkSize {
		end := i + chunkSize
		if end > len(wire) {
			end = len(wire)
		}
		d, _ := sess.Feed([]byte(wire[i:end]))
		acc = acc.Merge(d)
	}
	return acc.Merge(sess.Finalize())
}

func TestSession_EndToEnd(t *testing.T) {
	t.Run("Answer with embedded reasoning", func(t *testing.T) {
		// The example scenario: fragments arrive with the markers split
		// across envelope boundaries.
		wire := envelopeLine(t, "Hel", false) +
			envelopeLine(t, "lo <think>thi", false) +
			envelopeLine(t, "nk</think> world", true)

		for _, chunkSize := range []int{1, 3, 7, len(wire)} {
			sess := NewSession("conv1", "msg1", openMarker, closeMarker)
			acc := feedAll(t, sess, wire, chunkSize)

			assert.Equal(t, "Hello  world", acc.Content, "chunk size %d", chunkSize)
			assert.Equal(t, "think", acc.Thinking, "chunk size %d", chunkSize)
			assert.True(t, sess.Done(), "chunk size %d", chunkSize)
		}
	})

	t.Run("Raw accumulates the unsplit token text", func(t *testing.T) {
		wire := envelopeLine(t, "a<think>b", false) + envelopeLine(t, "</think>c", true)
		sess := NewSession("conv1", "msg1", openMarker, closeMarker)
		feedAll(t, sess, wire, 5)
		assert.Equal(t, "a<think>b</think>c", sess.Raw())
	})

	t.Run("Unterminated reasoning at stream end", func(t *testing.T) {
		wire := envelopeLine(t, "<think>unterminated reasoning", true)
		sess := NewSession("conv1", "msg1", openMarker, closeMarker)
		acc := feedAll(t, sess, wire, len(wire))

		assert.Equal(t, "", acc.Content)
		assert.Equal(t, "unterminated reasoning", acc.Thinking)
	})

	t.Run("Malformed line in the middle changes nothing", func(t *testing.T) {
		clean := envelopeLine(t, "hello", false) + envelopeLine(t, " world", true)
		dirty := envelopeLine(t, "hello", false) + "!!! not json at all\n" + envelopeLine(t, " world", true)

		cleanSess := NewSession("c", "m", openMarker, closeMarker)
		dirtySess := NewSession("c", "m", openMarker, closeMarker)

		cleanAcc := feedAll(t, cleanSess, clean, 4)
		dirtyAcc := feedAll(t, dirtySess, dirty, 4)

		assert.Equal(t, cleanAcc, dirtyAcc)
	})

	t.Run("Trailing record without newline is recovered on finalize", func(t *testing.T) {
		wire := envelopeLine(t, "first ", false) +
			`{"response": "last", "done": true}` // note: no trailing newline
		sess := NewSession("c", "m", openMarker, closeMarker)
		acc := feedAll(t, sess, wire, 8)

		assert.Equal(t, "first last", acc.Content)
		assert.True(t, sess.Done())
	})

	t.Run("Multi-byte rune split across transport chunks", func(t *testing.T) {
		wire := envelopeLine(t, "héllo wörld", true)
		for chunkSize := 1; chunkSize <= 4; chunkSize++ {
			sess := NewSession("c", "m", openMarker, closeMarker)
			acc := feedAll(t, sess, wire, chunkSize)
			require.Equal(t, "héllo wörld", acc.Content, "chunk size %d", chunkSize)
		}
	})

	t.Run("Done envelope reported by Feed", func(t *testing.T) {
		sess := NewSession("c", "m", openMarker, closeMarker)
		_, done := sess.Feed([]byte(envelopeLine(t, "x", false)))
		assert.False(t, done)
		_, done = sess.Feed([]byte(envelopeLine(t, "", true)))
		assert.True(t, done)
	})
}

func TestSession_FinalizeIdempotent(t *testing.T) {
	wire := envelopeLine(t, "answer <thi", true)
	sess := NewSession("c", "m", openMarker, closeMarker)

	d, _ := sess.Feed([]byte(wire))
	first := d.Merge(sess.Finalize())
	assert.Equal(t, "answer <thi", first.Content, "pending prefix must flush as literal text")

	// A second finalize adds nothing, and feeding after finalize is a no-op.
	assert.True(t, sess.Finalize().Empty())
	d, done := sess.Feed([]byte(envelopeLine(t, "late", false)))
	assert.True(t, d.Empty())
	assert.True(t, done)
}

// TestSession_NoDataLoss checks the reconstruction invariant over a mix of
// payloads and chunk sizes: content + thinking equals the raw token stream
// with the markers removed, regardless of transport chunking.
func TestSession_NoDataLoss(t *testing.T) {
	fragments := []string{"пер", "вый <think>вну", "три</think> хвост 😀"}

	var wire string
	for i, fragment := range fragments {
		wire += envelopeLine(t, fragment, i == len(fragments)-1)
	}

	for _, chunkSize := range []int{1, 2, 5, 13, len(wire)} {
		sess := NewSession("c", fmt.Sprintf("m%d", chunkSize), openMarker, closeMarker)
		acc := feedAll(t, sess, wire, chunkSize)

		require.Equal(t, "первый  хвост 😀", acc.Content, "chunk size %d", chunkSize)
		require.Equal(t, "внутри", acc.Thinking, "chunk size %d", chunkSize)
		require.Equal(t, "первый <think>внутри</think> хвост 😀", sess.Raw())
	}
}
