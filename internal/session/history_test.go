package session

import (
	"fmt"
	"testing"
	"time"
)

func TestHistoryTruncatesFIFO(t *testing.T) {
	h := NewHistory(3, nil)
	for i := 0; i < 10; i++ {
		h.AppendPair(fmt.Sprintf("u%d", i), fmt.Sprintf("a%d", i))
		if h.Len() > h.Limit() {
			t.Fatalf("len %d over limit %d", h.Len(), h.Limit())
		}
	}
	turns := h.Turns()
	if len(turns) != 6 || turns[0].Text != "u7" || turns[5].Text != "a9" {
		t.Fatalf("turns=%+v", turns)
	}
	if h.UserTurnsSeen() != 10 {
		t.Fatalf("user turns seen=%d", h.UserTurnsSeen())
	}
}

func TestHistoryOddAppendKeepsBound(t *testing.T) {
	h := NewHistory(1, nil)
	h.Append(RoleUser, "a")
	h.Append(RoleUser, "b")
	h.Append(RoleAssistant, "c")
	if turns := h.Turns(); len(turns) != 2 || turns[0].Text != "b" {
		t.Fatalf("turns=%+v", turns)
	}
}

func TestHistoryWindow(t *testing.T) {
	h := NewHistory(5, nil)
	h.AppendPair("u1", "a1")
	h.AppendPair("u2", "a2")
	w := h.Window(1)
	if len(w) != 2 || w[0].Text != "u2" {
		t.Fatalf("window=%+v", w)
	}
	if len(h.Window(10)) != 4 || h.Window(0) != nil {
		t.Fatalf("window bounds wrong")
	}
	h.Reset()
	if h.Len() != 0 || h.UserTurnsSeen() != 0 {
		t.Fatalf("reset failed")
	}
}

func TestHistoryZeroPairsKeepsNothing(t *testing.T) {
	h := NewHistory(0, nil)
	h.AppendPair("u", "a")
	if h.Len() != 0 {
		t.Fatalf("len=%d", h.Len())
	}
}

func TestToTypes(t *testing.T) {
	ts := time.Unix(1_700_000_000, 0)
	got := ToTypes([]Turn{{Role: RoleUser, Text: "x", Timestamp: ts}})
	if len(got) != 1 || got[0].Timestamp != ts.Unix() || got[0].Role != "user" {
		t.Fatalf("got=%+v", got)
	}
}
