package agent

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v3"

	"realtime-voice-agent/backend/internal/realtime"
)

type fakeAudio struct {
	mu       sync.Mutex
	startErr error
	started  int
	closed   int
}

func (a *fakeAudio) Start(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started++
	return a.startErr
}

func (a *fakeAudio) Track() webrtc.TrackLocal { return nil }

func (a *fakeAudio) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed++
	return nil
}

func (a *fakeAudio) closedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

type fakeFetcher struct {
	mu    sync.Mutex
	desc  *realtime.SessionDescriptor
	err   error
	block bool
	calls int
}

func (f *fakeFetcher) FetchSession(ctx context.Context) (*realtime.SessionDescriptor, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.desc, f.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeTransport struct {
	mu      sync.Mutex
	sent    [][]byte
	sendErr error
	closed  int
}

func (t *fakeTransport) Send(frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, frame)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed++
	return nil
}

func (t *fakeTransport) sentFrames() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.sent...)
}

func (t *fakeTransport) closedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// fakeDialer records the handlers it was given so tests can drive them.
type fakeDialer struct {
	mu         sync.Mutex
	transport  *fakeTransport
	err        error
	openOnDial bool
	handlers   Handlers
	desc       *realtime.SessionDescriptor
	calls      int
}

func (d *fakeDialer) Dial(_ context.Context, desc *realtime.SessionDescriptor, _ AudioSource, h Handlers) (Transport, error) {
	d.mu.Lock()
	d.calls++
	d.handlers = h
	d.desc = desc
	err := d.err
	d.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if d.openOnDial {
		h.OnOpen()
	}
	return d.transport, nil
}

func (d *fakeDialer) h() Handlers {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handlers
}

func (d *fakeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

var errBoom = errors.New("boom")

func testDescriptor() *realtime.SessionDescriptor {
	return &realtime.SessionDescriptor{
		ID:           "sess_1",
		Model:        realtime.ModelGPT4oRealtimePreview20241217,
		ClientSecret: realtime.ClientSecret{Value: "ek_test"},
	}
}
