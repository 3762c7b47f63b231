package stream

import "strings"

// LineFramer assembles decoded text into complete newline-terminated records.
// A trailing partial record is buffered until its newline arrives; the owner
// must call Flush at stream end to recover a final unterminated record.
type LineFramer struct {
	rem string
}

// Frame returns the complete records made available by text, in the order
// their terminating newline arrived.
func (f *LineFramer) Frame(text string) []string {
	data := f.rem + text
	if !strings.Contains(data, "\n") {
		f.rem = data
		return nil
	}

	parts := strings.Split(data, "\n")
	f.rem = parts[len(parts)-1]

	lines := parts[:len(parts)-1]
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// Flush returns the buffered partial record, if any. The caller decides
// whether it parses as a final record or gets discarded.
func (f *LineFramer) Flush() (string, bool) {
	if f.rem == "" {
		return "", false
	}
	line := strings.TrimSuffix(f.rem, "\r")
	f.rem = ""
	return line, true
}
