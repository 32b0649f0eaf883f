package session

import (
	"testing"
	"time"
)

func TestHistoryAppendOrder(t *testing.T) {
	h := newHistoryLog(nil)
	h.appendUser("hello")
	h.appendAssistant("hi there")
	h.appendUser("how are you")

	got := h.snapshot()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	wantRoles := []string{"user", "assistant", "user"}
	for i, role := range wantRoles {
		if got[i].Role != role {
			t.Fatalf("entry %d role = %q, want %q", i, got[i].Role, role)
		}
	}
	if got[0].Content != "hello" || got[2].Content != "how are you" {
		t.Fatalf("unexpected contents: %+v", got)
	}
}

func TestHistoryWindowKeepsMostRecent(t *testing.T) {
	h := newHistoryLog(nil)
	for _, text := range []string{"a", "b", "c", "d", "e", "f"} {
		h.appendUser(text)
	}

	window := h.window(4)
	if len(window) != 4 {
		t.Fatalf("window len = %d, want 4", len(window))
	}
	want := []string{"c", "d", "e", "f"}
	for i, content := range want {
		if window[i].Content != content {
			t.Fatalf("window[%d] = %q, want %q", i, window[i].Content, content)
		}
	}
	// Older entries are retained in the full record.
	if h.len() != 6 {
		t.Fatalf("record len = %d, want 6", h.len())
	}
}

func TestHistoryWindowShorterThanRecord(t *testing.T) {
	h := newHistoryLog(nil)
	h.appendUser("only")

	window := h.window(4)
	if len(window) != 1 || window[0].Content != "only" {
		t.Fatalf("window = %+v", window)
	}
	if got := h.window(0); got != nil {
		t.Fatalf("window(0) = %+v, want nil", got)
	}
}

func TestHistoryWindowReturnsCopy(t *testing.T) {
	h := newHistoryLog(nil)
	h.appendUser("original")

	window := h.window(1)
	window[0].Content = "mutated"
	if h.snapshot()[0].Content != "original" {
		t.Fatal("window mutation leaked into the record")
	}
}

func TestHistoryTimestampsMonotonic(t *testing.T) {
	times := []time.Time{
		time.Date(2026, 1, 1, 12, 0, 2, 0, time.UTC),
		time.Date(2026, 1, 1, 12, 0, 1, 0, time.UTC), // clock stepped back
		time.Date(2026, 1, 1, 12, 0, 5, 0, time.UTC),
	}
	i := 0
	h := newHistoryLog(func() time.Time {
		ts := times[i]
		i++
		return ts
	})

	h.appendUser("a")
	h.appendAssistant("b")
	h.appendUser("c")

	got := h.snapshot()
	for j := 1; j < len(got); j++ {
		if got[j].Timestamp.Before(got[j-1].Timestamp) {
			t.Fatalf("timestamp %d (%v) before %d (%v)", j, got[j].Timestamp, j-1, got[j-1].Timestamp)
		}
	}
}
