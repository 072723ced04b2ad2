package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"realtime-voice-agent/backend/internal/realtime"
)

// ErrMalformedResponse is returned when a 2xx body is not a session.
var ErrMalformedResponse = errors.New("malformed session response")

// maxUpstreamBody bounds how much of an upstream response is read.
const maxUpstreamBody = 1 << 20

// UpstreamError is a non-2xx answer from the realtime sessions endpoint.
type UpstreamError struct {
	StatusCode int
	Body       json.RawMessage
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// Details returns the upstream body as JSON when it is JSON and as a
// string otherwise.
func (e *UpstreamError) Details() any {
	if len(e.Body) == 0 {
		return nil
	}
	if json.Valid(e.Body) {
		return e.Body
	}
	return string(e.Body)
}

// UpstreamClient creates realtime sessions on the hosted API.
type UpstreamClient struct {
	client  *http.Client
	baseURL string
}

// NewUpstreamClient creates a client for baseURL, e.g.
// https://api.openai.com/v1.
func NewUpstreamClient(baseURL string, client *http.Client) *UpstreamClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &UpstreamClient{client: client, baseURL: baseURL}
}

// CreateSession posts req to {baseURL}/realtime/sessions.
func (c *UpstreamClient) CreateSession(ctx context.Context, apiKey string, req realtime.SessionRequest) (*realtime.SessionDescriptor, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal session request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/realtime/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build session request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("OpenAI-Beta", "realtime=v1")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return nil, fmt.Errorf("read session response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: raw}
	}

	var desc realtime.SessionDescriptor
	if err := json.Unmarshal(raw, &desc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &desc, nil
}
