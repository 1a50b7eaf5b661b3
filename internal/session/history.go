// Package session holds conversation history and its durable session records.
package session

import (
	"sync"
	"time"

	"asistan/pkg/types"
)

// Roles of a conversation turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message of the conversation.
type Turn struct {
	Role      string    `json:"role"`
	Text      string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// History is a FIFO-truncated conversation window holding at most
// 2 × maxPairs turns.
type History struct {
	mu       sync.Mutex
	turns    []Turn
	maxPairs int
	now      func() time.Time
	userSeen int
}

// NewHistory returns an empty history. now may be nil.
func NewHistory(maxPairs int, now func() time.Time) *History {
	if now == nil {
		now = time.Now
	}
	if maxPairs < 0 {
		maxPairs = 0
	}
	return &History{maxPairs: maxPairs, now: now}
}

// Limit is the maximum number of turns kept.
func (h *History) Limit() int { return 2 * h.maxPairs }

// Append adds one turn and drops the oldest turns over the limit.
func (h *History) Append(role, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, Turn{Role: role, Text: text, Timestamp: h.now()})
	if role == RoleUser {
		h.userSeen++
	}
	if over := len(h.turns) - h.Limit(); over > 0 {
		h.turns = append([]Turn(nil), h.turns[over:]...)
	}
}

// AppendPair adds a user turn followed by the assistant reply.
func (h *History) AppendPair(user, assistant string) {
	h.Append(RoleUser, user)
	h.Append(RoleAssistant, assistant)
}

// Turns returns a copy of every kept turn, oldest first.
func (h *History) Turns() []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Turn(nil), h.turns...)
}

// Window returns the last pairs×2 turns.
func (h *History) Window(pairs int) []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 2 * pairs
	if n <= 0 {
		return nil
	}
	if n > len(h.turns) {
		n = len(h.turns)
	}
	return append([]Turn(nil), h.turns[len(h.turns)-n:]...)
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

// UserTurnsSeen counts user turns since the last reset, truncated ones
// included. Style-example policies key off it.
func (h *History) UserTurnsSeen() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.userSeen
}

// Reset empties the history.
func (h *History) Reset() {
	h.mu.Lock()
	h.turns = nil
	h.userSeen = 0
	h.mu.Unlock()
}

// replace installs turns loaded from a record, keeping the limit.
func (h *History) replace(turns []Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if over := len(turns) - h.Limit(); over > 0 {
		turns = turns[over:]
	}
	h.turns = append([]Turn(nil), turns...)
	h.userSeen = 0
	for _, t := range h.turns {
		if t.Role == RoleUser {
			h.userSeen++
		}
	}
}

// ToTypes converts turns for API responses.
func ToTypes(turns []Turn) []types.Turn {
	out := make([]types.Turn, 0, len(turns))
	for _, t := range turns {
		out = append(out, types.Turn{Role: t.Role, Text: t.Text, Timestamp: t.Timestamp.Unix()})
	}
	return out
}
