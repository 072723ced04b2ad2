package agent

import (
	"context"

	"realtime-voice-agent/backend/internal/realtime"
)

// TransportState is a connection-level state change reported by a
// transport after Dial returned.
type TransportState int

const (
	TransportConnected TransportState = iota
	TransportDisconnected
	TransportFailed
	TransportClosed
)

func (s TransportState) String() string {
	switch s {
	case TransportConnected:
		return "connected"
	case TransportDisconnected:
		return "disconnected"
	case TransportFailed:
		return "failed"
	case TransportClosed:
		return "closed"
	}
	return "unknown"
}

// Handlers receive transport callbacks. They may be invoked from any
// goroutine and must not block.
type Handlers struct {
	// OnOpen fires once the event channel can carry frames.
	OnOpen func()
	// OnMessage receives every inbound text frame.
	OnMessage func(frame []byte)
	// OnState reports connection-level changes.
	OnState func(TransportState)
}

// Transport is an established event channel to the realtime peer.
type Transport interface {
	Send(frame []byte) error
	Close() error
}

// Dialer opens a Transport authorized by the session's ephemeral secret.
// audio may be ignored by transports without media.
type Dialer interface {
	Dial(ctx context.Context, session *realtime.SessionDescriptor, audio AudioSource, h Handlers) (Transport, error)
}
