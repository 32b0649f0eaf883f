package session

import "time"

// Entry is one immutable conversation turn.
type Entry struct {
	Role      string
	Content   string
	Timestamp time.Time
}

// historyLog is the append-only conversation record for one session.
// Timestamps are monotonically non-decreasing even if the wall clock
// steps backwards.
type historyLog struct {
	entries []Entry
	now     func() time.Time
}

func newHistoryLog(now func() time.Time) *historyLog {
	if now == nil {
		now = time.Now
	}
	return &historyLog{
		entries: make([]Entry, 0, 16),
		now:     now,
	}
}

func (h *historyLog) appendUser(text string) {
	h.append("user", text)
}

func (h *historyLog) appendAssistant(text string) {
	h.append("assistant", text)
}

func (h *historyLog) append(role, text string) {
	ts := h.now()
	if n := len(h.entries); n > 0 && ts.Before(h.entries[n-1].Timestamp) {
		ts = h.entries[n-1].Timestamp
	}
	h.entries = append(h.entries, Entry{Role: role, Content: text, Timestamp: ts})
}

// window returns a copy of the most recent n entries for prompt
// construction. Older entries stay in the record but are not replayed.
func (h *historyLog) window(n int) []Entry {
	if n <= 0 || len(h.entries) == 0 {
		return nil
	}
	start := len(h.entries) - n
	if start < 0 {
		start = 0
	}
	out := make([]Entry, len(h.entries)-start)
	copy(out, h.entries[start:])
	return out
}

// snapshot returns a copy of the full record.
func (h *historyLog) snapshot() []Entry {
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

func (h *historyLog) len() int {
	return len(h.entries)
}
