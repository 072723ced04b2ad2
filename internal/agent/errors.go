package agent

import (
	"context"
	"errors"
)

// Setup and transport failures. Every error surfaced by Session wraps one
// of these, so callers can branch with errors.Is.
var (
	ErrMediaUnavailable = errors.New("audio capture is not available")
	ErrSessionFetch     = errors.New("failed to fetch session")
	ErrMalformedSession = errors.New("session descriptor is invalid")
	ErrNegotiation      = errors.New("failed to connect to the realtime API")
	ErrTransport        = errors.New("connection to the realtime API was lost")
)

// errSuperseded is returned by Connect when Disconnect ran while the
// attempt was still in flight.
var errSuperseded = errors.New("connection attempt was cancelled")

// DefaultErrorMessage is shown when an error carries no text.
const DefaultErrorMessage = "connection failed"

// UserMessage converts err to the single human-readable line shown to the
// user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "connection attempt timed out"
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return DefaultErrorMessage
}
