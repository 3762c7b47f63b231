package stream

import "unicode/utf8"

// ByteDecoder converts raw transport bytes into text. The transport delivers
// chunks at arbitrary boundaries, so a multi-byte UTF-8 sequence can be split
// between two reads; the undecoded tail bytes are carried into the next call
// instead of being decoded into replacement characters.
type ByteDecoder struct {
	pending []byte
}

// Decode returns the text for chunk, prepending any bytes held over from the
// previous call and withholding a trailing incomplete sequence.
func (d *ByteDecoder) Decode(chunk []byte) string {
	if len(d.pending) > 0 {
		chunk = append(d.pending, chunk...)
		d.pending = nil
	}

	n := incompleteTailLen(chunk)
	if n > 0 {
		d.pending = append([]byte(nil), chunk[len(chunk)-n:]...)
		chunk = chunk[:len(chunk)-n]
	}
	return string(chunk)
}

// Flush releases whatever is still held. Called once at stream end; a tail
// that never completed is emitted as-is rather than silently dropped.
func (d *ByteDecoder) Flush() string {
	if len(d.pending) == 0 {
		return ""
	}
	s := string(d.pending)
	d.pending = nil
	return s
}

// incompleteTailLen reports how many bytes at the end of p form the start of
// a UTF-8 sequence whose continuation has not arrived yet. Returns 0 when p
// ends on a complete (or definitively invalid) sequence.
func incompleteTailLen(p []byte) int {
	for i := 1; i <= utf8.UTFMax && i <= len(p); i++ {
		b := p[len(p)-i]
		if b < utf8.RuneSelf {
			return 0
		}
		if b&0xC0 == 0x80 {
			// Continuation byte, keep looking for the start byte.
			continue
		}
		want := expectedSeqLen(b)
		if want > i {
			return i
		}
		return 0
	}
	return 0
}

func expectedSeqLen(start byte) int {
	switch {
	case start&0xE0 == 0xC0:
		return 2
	case start&0xF0 == 0xE0:
		return 3
	case start&0xF8 == 0xF0:
		return 4
	default:
		// Invalid start byte; let the string conversion deal with it.
		return 1
	}
}
