package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client is one WebSocket connection on the event feed. A client with an
// empty subscription set receives every event; subscribing narrows the feed
// to the named copies.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	subsMu sync.RWMutex
	subs   map[string]bool // nil means unfiltered
}

func NewClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
	}
}

// Run registers the client with the hub and starts its pumps.
func (c *Client) Run() {
	c.hub.messageChan <- hubMessage{kind: "register", client: c}
	go c.WritePump()
	go c.ReadPump()
}

func (c *Client) setSubscriptions(copies []string) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	if len(copies) == 0 {
		c.subs = nil
		return
	}
	c.subs = make(map[string]bool, len(copies))
	for _, slug := range copies {
		c.subs[slug] = true
	}
}

func (c *Client) wants(copySlug string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return c.subs == nil || c.subs[copySlug]
}

// trySend queues a payload without blocking; a slow client misses the event.
func (c *Client) trySend(payload []byte) {
	if payload == nil {
		return
	}
	select {
	case c.send <- payload:
	default:
		logrus.Debug("Client send buffer full, dropping event")
	}
}

// ReadPump pumps client messages into the hub until the connection closes.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.messageChan <- hubMessage{kind: "unregister", client: c}:
		case <-time.After(1 * time.Second):
			logrus.Warn("Timeout sending unregister message to hub channel")
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).Warn("WebSocket read error (unexpected close)")
			}
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}
		select {
		case c.hub.messageChan <- hubMessage{kind: "client", client: c, rawData: message}:
		default:
			logrus.Warn("Hub message channel full, dropping client message")
		}
	}
}

// WritePump pumps queued payloads to the connection and keeps it alive with
// periodic pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.WithError(err).Warn("Failed to write message to websocket")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
