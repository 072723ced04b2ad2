// Package transcript folds the realtime event stream into an ordered,
// per-speaker message list suitable for rendering.
package transcript

import (
	"time"

	"realtime-voice-agent/backend/internal/realtime"
)

// Role identifies the speaker of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversational turn.
type Message struct {
	// ID is the response id for assistant turns and the item id for user
	// turns. It is the reconciliation key.
	ID          string    `json:"id"`
	Role        Role      `json:"role"`
	Text        string    `json:"text"`
	IsStreaming bool      `json:"isStreaming"`
	Timestamp   time.Time `json:"timestamp"`
}

// ChangeOp says how a message changed.
type ChangeOp string

const (
	OpAppend ChangeOp = "append"
	OpUpdate ChangeOp = "update"
)

// Change describes one message that was appended or mutated in place.
type Change struct {
	Op      ChangeOp `json:"op"`
	Index   int      `json:"index"`
	Message Message  `json:"message"`
}

// Delta is the result of ingesting one event.
type Delta struct {
	Kind    realtime.Kind `json:"-"`
	Changes []Change      `json:"changes,omitempty"`

	// Error is a remote-reported error message. It never comes with
	// changes to the message list.
	Error string `json:"error,omitempty"`
}

// Empty reports whether the event had no visible effect.
func (d Delta) Empty() bool {
	return len(d.Changes) == 0 && d.Error == ""
}

func roleOf(item *realtime.Item) Role {
	if item != nil && item.Role == realtime.RoleAssistant {
		return RoleAssistant
	}
	return RoleUser
}
