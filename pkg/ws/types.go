package ws

import (
	"time"
)

// Frame types on the transcript feed.
const (
	FrameSnapshot = "snapshot"
	FramePing     = "ping"
	FramePong     = "pong"
	FrameError    = "error"
)

// Message is one transcript entry as sent to feed clients.
type Message struct {
	ID          string    `json:"id"`
	Role        string    `json:"role"` // "user" or "assistant"
	Text        string    `json:"text"`
	IsStreaming bool      `json:"isStreaming"`
	Timestamp   time.Time `json:"timestamp"`
}

// Frame is a single feed message. Snapshot frames carry the whole
// transcript; clients replace, never merge.
type Frame struct {
	Type     string    `json:"type"`
	Version  uint64    `json:"version,omitempty"`
	State    string    `json:"state,omitempty"`
	Status   string    `json:"status,omitempty"`
	Error    string    `json:"error,omitempty"`
	Messages []Message `json:"messages,omitempty"`
}
