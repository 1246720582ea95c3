// Package hub fans marketplace events out to WebSocket clients.
package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// Envelope is the wire format of every feed message.
type Envelope struct {
	Event     string      `json:"event"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// clientMessage is what clients may send upstream: a subscription filter or a
// keepalive ping.
type clientMessage struct {
	Event  string   `json:"event"`
	Copies []string `json:"copies"`
}

type hubMessage struct {
	kind    string // "register", "unregister", "client"
	client  *Client
	rawData []byte
}

// Hub maintains the connected client set and broadcasts event envelopes.
// Delivery is fire-and-forget: a client with a full send buffer misses the
// event rather than blocking the sender.
type Hub struct {
	messageChan chan hubMessage

	clients   map[*Client]bool
	clientsMu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		messageChan: make(chan hubMessage, 512),
		clients:     make(map[*Client]bool),
	}
}

// Run drives the hub's event loop. It should run in its own goroutine.
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running")

	for msg := range h.messageChan {
		switch msg.kind {
		case "register":
			h.registerClient(msg.client)
		case "unregister":
			h.unregisterClient(msg.client)
		case "client":
			h.handleClientMessage(msg.client, msg.rawData)
		default:
			log.Warnf("Received unknown hub message kind: %s", msg.kind)
		}
	}
	log.Info("Hub is shutting down")
}

// Stop closes the hub loop. Connected clients are closed by their own pumps.
func (h *Hub) Stop() {
	close(h.messageChan)
}

func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: attempted to register a nil client")
		return
	}
	h.clientsMu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.clientsMu.Unlock()
	logrus.WithField("clients", total).Debug("WebSocket client registered")
}

func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		return
	}
	h.clientsMu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.clientsMu.Unlock()
	logrus.WithField("clients", total).Debug("WebSocket client unregistered")
}

// handleClientMessage processes a subscribe filter or a ping. Anything else
// is ignored.
func (h *Hub) handleClientMessage(client *Client, raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		logrus.WithError(err).Debug("Ignoring malformed client message")
		return
	}
	switch msg.Event {
	case "subscribe":
		client.setSubscriptions(msg.Copies)
		logrus.WithField("copies", len(msg.Copies)).Debug("Client updated subscriptions")
	case "ping":
		client.trySend(marshalEnvelope("pong", nil))
	}
}

// Broadcast sends an event envelope to every client subscribed to the copy
// and to clients with no filter at all. Implements service.EventPublisher.
func (h *Hub) Broadcast(event, copySlug string, data interface{}) {
	payload := marshalEnvelope(event, data)
	if payload == nil {
		return
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for client := range h.clients {
		if client.wants(copySlug) {
			client.trySend(payload)
		}
	}
}

func marshalEnvelope(event string, data interface{}) []byte {
	b, err := json.Marshal(Envelope{
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		logrus.WithError(err).WithField("event", event).Error("Failed to marshal event envelope")
		return nil
	}
	return b
}
