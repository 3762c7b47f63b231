package stream

import "strings"

// Delta is the incremental output of one splitter step: the text to append
// to the visible answer and to the reasoning transcript. Either side (or
// both) may be empty.
type Delta struct {
	Content  string
	Thinking string
}

// Empty reports whether the delta carries no text at all.
func (d Delta) Empty() bool {
	return d.Content == "" && d.Thinking == ""
}

// Merge concatenates two deltas in arrival order.
func (d Delta) Merge(other Delta) Delta {
	return Delta{
		Content:  d.Content + other.Content,
		Thinking: d.Thinking + other.Thinking,
	}
}

type segmentState int

const (
	stateAnswer segmentState = iota
	stateReasoning
)

// SegmentSplitter routes the raw token stream into answer and reasoning
// text. A reasoning segment is delimited by a paired open/close marker that
// may legitimately arrive split across any number of fragments, so the
// splitter cannot just look for the markers inside each fragment: when a
// fragment ends with a proper prefix of the marker it is searching for, that
// suffix is withheld until the next fragment decides whether it completes
// the marker or was ordinary text.
//
// Markers inside an already-open reasoning segment are literal, as is a
// close marker with no preceding open. The splitter never fails; every
// anomaly degrades to literal text.
type SegmentSplitter struct {
	open  string
	close string

	state   segmentState
	pending string
}

// NewSegmentSplitter returns a splitter for the given marker pair. Both
// markers must be non-empty; an empty pair disables separation and routes
// everything to the answer.
func NewSegmentSplitter(openMarker, closeMarker string) *SegmentSplitter {
	return &SegmentSplitter{open: openMarker, close: closeMarker}
}

// Split processes one token fragment and returns the incremental delta.
// The result is invariant under re-chunking: any partition of the raw text
// into fragments produces the same accumulated output.
func (s *SegmentSplitter) Split(fragment string) Delta {
	if fragment == "" {
		return Delta{}
	}
	if s.open == "" || s.close == "" {
		return Delta{Content: fragment}
	}

	// Re-prepend the withheld suffix before scanning.
	text := s.pending + fragment
	s.pending = ""

	var d Delta
	for text != "" {
		marker := s.open
		if s.state == stateReasoning {
			marker = s.close
		}

		if i := strings.Index(text, marker); i >= 0 {
			s.emit(&d, text[:i])
			text = text[i+len(marker):]
			s.toggle()
			continue
		}

		// No full marker. Withhold a trailing proper prefix of the marker,
		// if present, and emit the rest.
		k := trailingOverlap(text, marker)
		s.pending = text[len(text)-k:]
		s.emit(&d, text[:len(text)-k])
		break
	}
	return d
}

// Flush releases the withheld suffix as literal text in the active segment.
// Called on finalize: a prefix that was never completed was not a marker.
func (s *SegmentSplitter) Flush() Delta {
	var d Delta
	s.emit(&d, s.pending)
	s.pending = ""
	return d
}

// InsideReasoning reports whether the splitter is currently inside an open
// reasoning segment. A stream may legitimately end here when the model never
// produced a close marker; the accumulated text stays in Thinking.
func (s *SegmentSplitter) InsideReasoning() bool {
	return s.state == stateReasoning
}

func (s *SegmentSplitter) emit(d *Delta, text string) {
	if text == "" {
		return
	}
	if s.state == stateReasoning {
		d.Thinking += text
	} else {
		d.Content += text
	}
}

func (s *SegmentSplitter) toggle() {
	if s.state == stateAnswer {
		s.state = stateReasoning
	} else {
		s.state = stateAnswer
	}
}

// trailingOverlap returns the length of the longest proper, non-empty prefix
// of marker that is a suffix of text, or 0 if there is none.
func trailingOverlap(text, marker string) int {
	max := len(marker) - 1
	if len(text) < max {
		max = len(text)
	}
	for k := max; k > 0; k-- {
		if strings.HasSuffix(text, marker[:k]) {
			return k
		}
	}
	return 0
}
