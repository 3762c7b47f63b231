package stream

import (
	"encoding/json"
	"strings"
)

// Envelope is one parsed record from the inference endpoint's streamed
// response body: a token fragment plus a flag marking the terminal record.
type Envelope struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// ParseEnvelope attempts to parse one complete record. A blank or malformed
// line yields ok == false and is simply dropped by the caller; a single bad
// record must never abort the session.
func ParseEnvelope(line string) (Envelope, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Envelope{}, false
	}

	var env Envelope
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		return Envelope{}, false
	}
	return env, true
}
