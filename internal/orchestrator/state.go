package orchestrator

import (
	"fmt"
	"strings"
)

// State is the conversation state machine position.
type State int32

const (
	Idle State = iota
	AwaitingModel
	Generating
	PostProcessing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingModel:
		return "awaiting_model"
	case Generating:
		return "generating"
	case PostProcessing:
		return "post_processing"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// StylePolicy decides when few-shot style examples go into the payload.
type StylePolicy string

const (
	StyleAlways     StylePolicy = "always"
	StyleFirstTurns StylePolicy = "first_turns"
	StyleNever      StylePolicy = "never"
)

// ParseStylePolicy accepts the config spellings; empty means first_turns.
func ParseStylePolicy(s string) (StylePolicy, error) {
	switch p := StylePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return StyleFirstTurns, nil
	case StyleAlways, StyleFirstTurns, StyleNever:
		return p, nil
	}
	return "", fmt.Errorf("unknown style policy %q", s)
}
