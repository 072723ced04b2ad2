package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"realtime-voice-agent/backend/internal/agent"
	"realtime-voice-agent/backend/pkg/logger"
	feed "realtime-voice-agent/backend/pkg/ws"
	"realtime-voice-agent/backend/shared/observability"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Feed clients only send pings.
	maxMessageSize = 4 * 1024

	// Frames buffered per client before it counts as slow.
	sendBuffer = 32
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	HandshakeTimeout: 10 * time.Second,
	ReadBufferSize:   1024,
	WriteBufferSize:  4096,
}

var pongFrame = []byte(`{"type":"` + feed.FramePong + `"}`)

// SnapshotSource is what the hub mirrors. *agent.Session implements it.
type SnapshotSource interface {
	Snapshot() agent.Snapshot
	Subscribe() (<-chan agent.Snapshot, func())
}

// Client is one feed subscriber.
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
	Hub  *Hub

	pong chan struct{}
}

// Hub fans transcript snapshots out to feed clients.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu     sync.Mutex
	latest []byte
	count  atomic.Int64

	log     *logger.Logger
	metrics *observability.Metrics
}

// NewHub creates a hub. metrics may be nil.
func NewHub(log *logger.Logger, metrics *observability.Metrics) *Hub {
	if log == nil {
		log = logger.Discard()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log.WithComponent("feed"),
		metrics:    metrics,
	}
}

// Run serves registrations and broadcasts until ctx is cancelled, then
// closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.countClients(1)
			if latest := h.Latest(); latest != nil {
				client.Send <- latest
			}
			h.log.Info("feed client registered", "client_id", client.ID)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.remove(client)
				h.log.Info("feed client unregistered", "client_id", client.ID)
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					h.remove(client)
					h.log.Warn("feed client removed due to blocked channel", "client_id", client.ID)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	close(client.Send)
	h.countClients(-1)
}

func (h *Hub) countClients(delta int64) {
	h.count.Add(delta)
	if h.metrics != nil {
		h.metrics.FeedClients(context.Background(), delta)
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int64 {
	return h.count.Load()
}

// Publish encodes snap, stores it as the latest frame and queues it for
// every client. It returns false once the hub has stopped.
func (h *Hub) Publish(snap agent.Snapshot) bool {
	data, err := json.Marshal(FrameFrom(snap))
	if err != nil {
		h.log.LogError(err, "encoding feed frame")
		return true
	}

	h.mu.Lock()
	h.latest = data
	h.mu.Unlock()

	select {
	case h.broadcast <- data:
		return true
	case <-h.done:
		return false
	}
}

// Latest returns the last published frame, or nil.
func (h *Hub) Latest() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

// Follow publishes every snapshot from src until ctx is cancelled or the
// subscription ends.
func (h *Hub) Follow(ctx context.Context, src SnapshotSource) {
	updates, cancel := src.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok || !h.Publish(snap) {
				return
			}
		}
	}
}

// FrameFrom converts a session snapshot to its wire form.
func FrameFrom(snap agent.Snapshot) feed.Frame {
	msgs := make([]feed.Message, len(snap.Messages))
	for i, m := range snap.Messages {
		msgs[i] = feed.Message{
			ID:          m.ID,
			Role:        string(m.Role),
			Text:        m.Text,
			IsStreaming: m.IsStreaming,
			Timestamp:   m.Timestamp,
		}
	}
	return feed.Frame{
		Type:     feed.FrameSnapshot,
		Version:  snap.Version,
		State:    snap.State.String(),
		Status:   snap.Status,
		Error:    snap.Error,
		Messages: msgs,
	}
}

// ReadPump answers pings until the connection drops.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Warn("feed client read failed", "client_id", c.ID, "error", err.Error())
			}
			return
		}

		var frame feed.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if frame.Type == feed.FramePing {
			select {
			case c.pong <- struct{}{}:
			default:
			}
		}
	}
}

// WritePump writes queued frames and keepalive pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-c.pong:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, pongFrame); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades the request and registers a feed client.
func ServeWs(hub *Hub, c *gin.Context) {
	clientID := c.Query("clientId")
	if clientID == "" {
		clientID = uuid.New().String()
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.log.Warn("feed upgrade failed", "error", err.Error())
		return
	}

	client := &Client{
		ID:   clientID,
		Conn: conn,
		Send: make(chan []byte, sendBuffer),
		Hub:  hub,
		pong: make(chan struct{}, 1),
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
