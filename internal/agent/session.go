package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"realtime-voice-agent/backend/internal/realtime"
	"realtime-voice-agent/backend/internal/transcript"
	"realtime-voice-agent/backend/pkg/logger"
	"realtime-voice-agent/backend/shared/observability"
)

// Status lines shown next to the connection state.
const (
	StatusAcquiringAudio  = "accessing the microphone..."
	StatusFetchingSession = "requesting a session..."
	StatusNegotiating     = "connecting to the agent..."
	StatusEstablished     = "connection established, you can start talking"
	StatusChannelOpen     = "started talking with the agent"
)

// inboxSize bounds the frames queued between a transport and the event loop.
const inboxSize = 256

// connection holds everything acquired by one Connect call.
type connection struct {
	inbox  chan []byte
	done   chan struct{} // closed on teardown
	ready  chan struct{} // closed once transport is set
	cancel context.CancelFunc

	audio     AudioSource
	transport Transport
}

func (c *connection) release() {
	if c.transport != nil {
		_ = c.transport.Close()
	}
	if c.audio != nil {
		_ = c.audio.Close()
	}
}

// Session drives one voice agent connection and owns its transcript.
// All methods are safe for concurrent use.
type Session struct {
	fetcher  SessionFetcher
	dialer   Dialer
	newAudio func() AudioSource
	log      *logger.Logger
	metrics  *observability.Metrics
	now      func() time.Time

	mu      sync.Mutex
	rec     *transcript.Reconciler
	conn    *connection
	state   State
	status  string
	errMsg  string
	version uint64
	subs    map[chan Snapshot]struct{}
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithAudioSource sets the factory called once per Connect.
func WithAudioSource(newAudio func() AudioSource) SessionOption {
	return func(s *Session) {
		s.newAudio = newAudio
	}
}

// WithSessionLogger sets the logger.
func WithSessionLogger(log *logger.Logger) SessionOption {
	return func(s *Session) {
		s.log = log
	}
}

// WithMetrics records ingested and dropped events.
func WithMetrics(m *observability.Metrics) SessionOption {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithSessionClock overrides the time source for timestamps.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		s.now = now
	}
}

// NewSession creates an idle Session.
func NewSession(fetcher SessionFetcher, dialer Dialer, opts ...SessionOption) *Session {
	s := &Session{
		fetcher:  fetcher,
		dialer:   dialer,
		newAudio: func() AudioSource { return NewSilenceSource() },
		log:      logger.Discard(),
		now:      time.Now,
		subs:     make(map[chan Snapshot]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithComponent("agent")
	s.rec = transcript.New(transcript.WithClock(s.now), transcript.WithLogger(s.log))
	return s
}

// Connect acquires audio, fetches a session descriptor and opens the
// transport. It returns nil immediately if a connection is already
// connecting or connected. On failure the session is left in StateError
// with every acquired resource released.
func (s *Session) Connect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := &connection{
		inbox:  make(chan []byte, inboxSize),
		done:   make(chan struct{}),
		ready:  make(chan struct{}),
		cancel: cancel,
	}

	s.mu.Lock()
	if s.state.Active() {
		s.mu.Unlock()
		return nil
	}
	s.conn = c
	s.state = StateConnecting
	s.errMsg = ""
	s.status = StatusAcquiringAudio
	s.publishLocked()
	s.mu.Unlock()

	go s.loop(c)

	audio := s.newAudio()
	if audio == nil {
		return s.fail(c, fmt.Errorf("%w: no audio source configured", ErrMediaUnavailable))
	}
	if err := audio.Start(ctx); err != nil {
		_ = audio.Close()
		return s.fail(c, fmt.Errorf("%w: %v", ErrMediaUnavailable, err))
	}
	if !s.attach(c, func() { c.audio = audio }) {
		_ = audio.Close()
		return errSuperseded
	}

	if !s.setStatus(c, StatusFetchingSession) {
		return errSuperseded
	}
	desc, err := s.fetcher.FetchSession(ctx)
	if err != nil {
		return s.fail(c, err)
	}

	if !s.setStatus(c, StatusNegotiating) {
		return errSuperseded
	}
	s.log.Info("dialing realtime peer", "session_id", desc.ID, "model", desc.Model)

	t, err := s.dialer.Dial(ctx, desc, audio, Handlers{
		OnOpen:    func() { go s.onOpen(c) },
		OnMessage: func(frame []byte) { s.enqueue(c, frame) },
		OnState:   func(ts TransportState) { s.onTransportState(c, ts) },
	})
	if err != nil {
		return s.fail(c, err)
	}

	s.mu.Lock()
	if s.conn != c {
		s.mu.Unlock()
		_ = t.Close()
		return errSuperseded
	}
	c.transport = t
	s.state = StateConnected
	s.status = StatusEstablished
	s.publishLocked()
	s.mu.Unlock()
	close(c.ready)

	s.log.Info("connected to realtime peer", "session_id", desc.ID)
	return nil
}

// Disconnect releases the connection, clears the transcript and status and
// returns to StateIdle. Calling it again is a no-op.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.conn == nil && s.state == StateIdle && s.status == "" && s.rec.Len() == 0 {
		s.mu.Unlock()
		return
	}
	c := s.teardownLocked()
	s.state = StateIdle
	s.publishLocked()
	s.mu.Unlock()

	if c != nil {
		c.release()
		s.log.Info("disconnected")
	}
}

// Close disconnects and ends every subscription.
func (s *Session) Close() {
	s.Disconnect()

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel that always holds the latest snapshot; a
// slow reader skips intermediate versions. The current snapshot is
// delivered first. Call the returned function to unsubscribe.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subs[ch]; ok {
				delete(s.subs, ch)
				close(ch)
			}
		})
	}
}

// loop applies inbound frames for one connection in arrival order.
func (s *Session) loop(c *connection) {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.inbox:
			s.ingest(c, frame)
		}
	}
}

func (s *Session) enqueue(c *connection, frame []byte) {
	select {
	case c.inbox <- frame:
	case <-c.done:
	}
}

func (s *Session) ingest(c *connection, frame []byte) {
	ctx := context.Background()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != c {
		return
	}

	d, err := s.rec.IngestFrame(frame)
	if err != nil {
		if s.metrics != nil {
			s.metrics.EventDropped(ctx)
		}
		return
	}
	if s.metrics != nil {
		s.metrics.EventIngested(ctx, d.Kind.String())
	}

	if d.Error != "" {
		s.errMsg = d.Error
		s.log.Warn("agent reported an error", "error", d.Error)
	}
	if !d.Empty() {
		s.publishLocked()
	}
}

// onOpen asks the peer for its first turn once the transport is set.
func (s *Session) onOpen(c *connection) {
	select {
	case <-c.ready:
	case <-c.done:
		return
	}

	s.mu.Lock()
	if s.conn != c {
		s.mu.Unlock()
		return
	}
	t := c.transport
	s.status = StatusChannelOpen
	s.publishLocked()
	s.mu.Unlock()

	frame, err := json.Marshal(realtime.ResponseCreate())
	if err != nil {
		_ = s.fail(c, fmt.Errorf("%w: %v", ErrTransport, err))
		return
	}
	if err := t.Send(frame); err != nil {
		_ = s.fail(c, err)
	}
}

func (s *Session) onTransportState(c *connection, ts TransportState) {
	if ts == TransportConnected {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.conn != c {
			return
		}
		s.state = StateConnected
		s.status = "connection state: " + ts.String()
		s.publishLocked()
		return
	}
	_ = s.fail(c, fmt.Errorf("%w: connection state %s", ErrTransport, ts))
}

// fail moves c's session to StateError and releases c. Errors from a
// connection that is no longer current are returned without effect.
func (s *Session) fail(c *connection, err error) error {
	s.mu.Lock()
	if s.conn != c {
		s.mu.Unlock()
		return err
	}
	s.teardownLocked()
	s.state = StateError
	s.errMsg = UserMessage(err)
	s.publishLocked()
	s.mu.Unlock()

	c.release()
	s.log.LogError(err, "connection failed")
	return err
}

// teardownLocked detaches the current connection, clears the transcript
// and returns the connection for release outside the lock.
func (s *Session) teardownLocked() *connection {
	c := s.conn
	s.conn = nil
	if c != nil {
		close(c.done)
		c.cancel()
	}
	s.rec.Reset()
	s.status = ""
	return c
}

// attach runs fn under the lock if c is still current.
func (s *Session) attach(c *connection, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != c {
		return false
	}
	fn()
	return true
}

func (s *Session) setStatus(c *connection, status string) bool {
	return s.attach(c, func() {
		s.status = status
		s.publishLocked()
	})
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Version:   s.version,
		State:     s.state,
		Status:    s.status,
		Error:     s.errMsg,
		Messages:  s.rec.Messages(),
		UpdatedAt: s.now(),
	}
}

func (s *Session) publishLocked() {
	s.version++
	snap := s.snapshotLocked()
	for ch := range s.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
