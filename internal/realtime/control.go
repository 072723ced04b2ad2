package realtime

import "github.com/google/uuid"

// NewEventID generates a client event id.
func NewEventID() string {
	return "evt_" + uuid.New().String()[:12]
}

// ResponseCreate builds the control message that asks the peer for the
// next assistant turn.
func ResponseCreate() map[string]any {
	return map[string]any{
		"event_id": NewEventID(),
		"type":     EventTypeResponseCreate,
	}
}
