package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/richxcame/ride-hailing/internal/platform/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Message is the wire envelope for every inbound and outbound socket
// frame — a driver's location_update, a dispatch offer pushed to
// "driver:{id}", a ride status change pushed to "ride:{id}", and so on.
type Message struct {
	Type      string                 `json:"type"`
	RideID    string                 `json:"ride_id,omitempty"`
	UserID    string                 `json:"user_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// MarshalJSON renders Timestamp as RFC3339 rather than Go's default
// nanosecond-precision layout, matching what every other client on the
// wire expects.
func (m *Message) MarshalJSON() ([]byte, error) {
	type alias Message
	return json.Marshal(&struct {
		Timestamp string `json:"timestamp"`
		*alias
	}{
		Timestamp: m.Timestamp.Format(time.RFC3339),
		alias:     (*alias)(m),
	})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	aux := &struct {
		Timestamp string `json:"timestamp"`
		*alias
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if aux.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return err
		}
		m.Timestamp = t
	}
	return nil
}

// Client is one connected socket. Unlike a single current-ride id, a
// client here can occupy several channels at once — a driver is
// typically in "driver:{id}" and "available-drivers:{vehicleType}"
// simultaneously.
type Client struct {
	ID   string
	Role string
	Conn *websocket.Conn
	Send chan *Message
	Hub  *Hub

	mu       sync.RWMutex
	channels map[string]struct{}
}

// NewClient builds a Client ready to be registered with hub.
func NewClient(id, role string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		ID:       id,
		Role:     role,
		Conn:     conn,
		Send:     make(chan *Message, 256),
		Hub:      hub,
		channels: make(map[string]struct{}),
	}
}

// Channels returns a snapshot of every channel this client currently
// occupies.
func (c *Client) Channels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		out = append(out, ch)
	}
	return out
}

func (c *Client) joinChannel(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[channel] = struct{}{}
}

func (c *Client) leaveChannel(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.channels, channel)
}

// SendMessage queues msg for delivery, dropping the connection instead
// of blocking the hub's event loop if the client's outbound buffer is
// full.
func (c *Client) SendMessage(msg *Message) {
	select {
	case c.Send <- msg:
	default:
		logger.Get().Warn("realtime client send buffer full, dropping connection", zap.String("client_id", c.ID))
		go func() { c.Hub.Unregister <- c }()
	}
}

// ReadPump pumps inbound frames from the socket to the hub until the
// connection closes. Must run in its own goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Get().Warn("realtime read error", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
		msg.Timestamp = time.Now()
		msg.UserID = c.ID
		c.Hub.HandleMessage(c, &msg)
	}
}

// WritePump drains Send to the socket and keeps the connection alive
// with periodic pings. Must run in its own goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(msg); err != nil {
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
