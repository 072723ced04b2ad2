package agent

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"realtime-voice-agent/backend/internal/realtime"
	"realtime-voice-agent/backend/pkg/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound event size.
	maxMessageSize = 4 << 20
)

// WebSocketDialer connects to the realtime WebSocket endpoint. It carries
// events only; audio is not streamed.
type WebSocketDialer struct {
	URL              string
	HandshakeTimeout time.Duration
	Log              *logger.Logger
}

// NewWebSocketDialer creates a dialer for the default realtime endpoint.
func NewWebSocketDialer(log *logger.Logger) *WebSocketDialer {
	return &WebSocketDialer{
		URL:              realtime.DefaultWebSocketURL,
		HandshakeTimeout: 15 * time.Second,
		Log:              log,
	}
}

type wsTransport struct {
	conn *websocket.Conn
	log  *logger.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
	h         Handlers
}

// Dial implements Dialer. The channel counts as open as soon as the
// handshake succeeds.
func (d *WebSocketDialer) Dial(ctx context.Context, session *realtime.SessionDescriptor, _ AudioSource, h Handlers) (Transport, error) {
	if session == nil || session.ClientSecret.Value == "" {
		return nil, fmt.Errorf("%w: missing client secret", ErrMalformedSession)
	}

	endpoint := d.URL
	if endpoint == "" {
		endpoint = realtime.DefaultWebSocketURL
	}
	endpoint += "?model=" + url.QueryEscape(session.Model)

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+session.ClientSecret.Value)
	headers.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: d.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: handshake returned status %d", ErrNegotiation, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %v", ErrNegotiation, err)
	}

	t := &wsTransport{
		conn:   conn,
		log:    d.Log,
		closed: make(chan struct{}),
		h:      h,
	}

	if h.OnState != nil {
		h.OnState(TransportConnected)
	}
	if h.OnOpen != nil {
		h.OnOpen()
	}

	go t.readPump()
	go t.pingPump()
	return t, nil
}

func (t *wsTransport) readPump() {
	defer func() {
		select {
		case <-t.closed:
			// Local close; nothing to report.
		default:
			if t.h.OnState != nil {
				t.h.OnState(TransportFailed)
			}
		}
	}()

	t.conn.SetReadLimit(maxMessageSize)
	_ = t.conn.SetReadDeadline(time.Now().Add(pongWait))
	t.conn.SetPongHandler(func(string) error {
		return t.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && t.log != nil {
				t.log.Warn("realtime websocket closed", "error", err.Error())
			}
			return
		}
		if msgType == websocket.TextMessage && t.h.OnMessage != nil {
			t.h.OnMessage(data)
		}
	}
}

func (t *wsTransport) pingPump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-t.closed:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := t.conn.WriteMessage(websocket.PingMessage, nil)
			t.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Send writes one text frame.
func (t *wsTransport) Send(frame []byte) error {
	select {
	case <-t.closed:
		return fmt.Errorf("%w: connection closed", ErrTransport)
	default:
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := t.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// Close sends a close frame and tears down the connection once.
func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		t.writeMu.Lock()
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		t.writeMu.Unlock()
		err = t.conn.Close()
	})
	return err
}
