// Package tui provides a Bubble Tea terminal UI for talking to npcmind NPCs.
package tui

import "strings"

// History remembers submitted lines for Up/Down recall. It keeps at most
// max lines; the oldest is forgotten first.
type History struct {
	entries []string
	max     int
	cursor  int // -1 while editing a fresh line
}

// NewHistory creates a history holding at most max lines.
func NewHistory(max int) *History {
	if max <= 0 {
		max = 1
	}
	return &History{
		entries: make([]string, 0, max),
		max:     max,
		cursor:  -1,
	}
}

// Push records a submitted line. Blank lines and repeats of the previous
// line are not recorded.
func (h *History) Push(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if n := len(h.entries); n > 0 && h.entries[n-1] == line {
		return
	}
	if len(h.entries) == h.max {
		copy(h.entries, h.entries[1:])
		h.entries = h.entries[:h.max-1]
	}
	h.entries = append(h.entries, line)
}

// Prev steps back to an older line, stopping at the oldest.
func (h *History) Prev() (string, bool) {
	if len(h.entries) == 0 {
		return "", false
	}
	switch {
	case h.cursor < 0:
		h.cursor = len(h.entries) - 1
	case h.cursor > 0:
		h.cursor--
	}
	return h.entries[h.cursor], true
}

// Next steps forward to a newer line. Past the newest it returns false and
// the caller goes back to a fresh line.
func (h *History) Next() (string, bool) {
	if h.cursor < 0 {
		return "", false
	}
	if h.cursor++; h.cursor >= len(h.entries) {
		h.cursor = -1
		return "", false
	}
	return h.entries[h.cursor], true
}

// ResetCursor leaves history navigation.
func (h *History) ResetCursor() {
	h.cursor = -1
}
