package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"realtime-voice-agent/backend/internal/realtime"
)

// SessionFetcher obtains a session descriptor.
type SessionFetcher interface {
	FetchSession(ctx context.Context) (*realtime.SessionDescriptor, error)
}

// BrokerClient calls the session broker's POST /api/session.
type BrokerClient struct {
	baseURL string
	client  *http.Client
}

// NewBrokerClient creates a client for the broker at baseURL.
func NewBrokerClient(baseURL string, client *http.Client) *BrokerClient {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &BrokerClient{baseURL: baseURL, client: client}
}

// FetchSession requests a fresh descriptor. Failures wrap ErrSessionFetch
// or ErrMalformedSession.
func (b *BrokerClient) FetchSession(ctx context.Context) (*realtime.SessionDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/session", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionFetch, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionFetch, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var failure struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &failure) == nil && failure.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrSessionFetch, failure.Error)
		}
		return nil, fmt.Errorf("%w: broker returned status %d", ErrSessionFetch, resp.StatusCode)
	}

	var desc realtime.SessionDescriptor
	if err := json.Unmarshal(body, &desc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSession, err)
	}
	if desc.ClientSecret.Value == "" {
		return nil, fmt.Errorf("%w: missing client_secret.value", ErrMalformedSession)
	}
	return &desc, nil
}
