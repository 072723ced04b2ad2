package agent

import (
	"fmt"
	"time"

	"realtime-voice-agent/backend/internal/transcript"
)

// State is the connection state of a Session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateError
)

var stateNames = [...]string{
	StateIdle:       "idle",
	StateConnecting: "connecting",
	StateConnected:  "connected",
	StateError:      "error",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Active reports whether a connection attempt is running or established.
func (s State) Active() bool {
	return s == StateConnecting || s == StateConnected
}

// Snapshot is an immutable view of a Session handed to readers.
type Snapshot struct {
	Version   uint64               `json:"version"`
	State     State                `json:"state"`
	Status    string               `json:"status,omitempty"`
	Error     string               `json:"error,omitempty"`
	Messages  []transcript.Message `json:"messages"`
	UpdatedAt time.Time            `json:"updatedAt"`
}
