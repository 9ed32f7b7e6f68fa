package logging

import (
	"sync"
	"time"
)

// LogEntry is one record kept for the web log stream.
type LogEntry struct {
	Seq        uint64         `json:"seq"`
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// History keeps the most recent entries, addressed by sequence number.
// Entry seq lives in slot seq%cap, so a newer entry evicts exactly the one
// written cap records earlier.
type History struct {
	mu    sync.Mutex
	slots []LogEntry
	last  uint64
}

// NewHistory creates a history holding up to capacity entries.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{slots: make([]LogEntry, capacity)}
}

// Append stores e. Entries must arrive with increasing Seq; a stale one is dropped.
func (h *History) Append(e LogEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e.Seq <= h.last && h.last != 0 {
		return
	}
	h.slots[e.Seq%uint64(len(h.slots))] = e
	h.last = e.Seq
}

// Snapshot returns the retained entries, oldest first.
func (h *History) Snapshot() []LogEntry {
	return h.Since(0)
}

// Since returns retained entries with Seq greater than seq, oldest first.
func (h *History) Since(seq uint64) []LogEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	first := h.first()
	if seq >= first {
		first = seq + 1
	}
	if h.last == 0 || first > h.last {
		return nil
	}

	out := make([]LogEntry, 0, h.last-first+1)
	for s := first; s <= h.last; s++ {
		// Sequence gaps leave older entries in place.
		if e := h.slots[s%uint64(len(h.slots))]; e.Seq == s {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of retained entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.slots {
		if e.Seq != 0 {
			n++
		}
	}
	return n
}

// first is the oldest sequence number that can still be retained.
func (h *History) first() uint64 {
	size := uint64(len(h.slots))
	if h.last < size {
		return 1
	}
	return h.last - size + 1
}
