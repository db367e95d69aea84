// Package realtime is the dispatch core's websocket channel registry:
// drivers and riders connect once and join named channels
// (`driver:{id}`, `ride:{id}`, `available-drivers[:vehicleType]`).
// It never decides online/available state itself — that is the REST
// status endpoint in internal/drivers — a connected socket is
// presence, not availability.
package realtime

import (
	"sync"

	"go.uber.org/zap"

	"github.com/richxcame/ride-hailing/internal/platform/logger"
)

// MessageHandler processes one inbound client message.
type MessageHandler func(*Client, *Message)

// Hub maintains every connected client and the channels they've
// joined, and fans out messages to one client, one channel, or every
// client.
type Hub struct {
	clients  map[string]*Client
	channels map[string]map[string]*Client

	Register   chan *Client
	Unregister chan *Client
	Broadcast  chan *broadcastMessage

	handlers map[string]MessageHandler
	mu       sync.RWMutex
}

type broadcastMessage struct {
	target   string // "client", "channel", "all"
	targetID string
	message  *Message
}

// NewHub builds an empty Hub. Call Run in its own goroutine to start
// processing register/unregister/broadcast events.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		channels:   make(map[string]map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan *broadcastMessage, 256),
		handlers:   make(map[string]MessageHandler),
	}
}

// Run is the hub's single-goroutine event loop for register,
// unregister and broadcast events. JoinChannel and LeaveChannel also
// change clients/channels from other goroutines, so every access goes
// through h.mu.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)
		case client := <-h.Unregister:
			h.unregisterClient(client)
		case b := <-h.Broadcast:
			h.deliver(b)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.clients[client.ID]; ok {
		close(existing.Send)
	}
	h.clients[client.ID] = client
	logger.Get().Info("realtime client registered", zap.String("client_id", client.ID), zap.String("role", client.Role))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	for _, channel := range client.Channels() {
		if members, ok := h.channels[channel]; ok {
			delete(members, client.ID)
			if len(members) == 0 {
				delete(h.channels, channel)
			}
		}
	}
	close(client.Send)
}

func (h *Hub) deliver(b *broadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	switch b.target {
	case "client":
		if client, ok := h.clients[b.targetID]; ok {
			client.SendMessage(b.message)
		}
	case "channel":
		for _, client := range h.channels[b.targetID] {
			client.SendMessage(b.message)
		}
	case "all":
		for _, client := range h.clients {
			client.SendMessage(b.message)
		}
	}
}

// HandleMessage routes an inbound message to its registered handler,
// if any.
func (h *Hub) HandleMessage(client *Client, msg *Message) {
	h.mu.RLock()
	handler, ok := h.handlers[msg.Type]
	h.mu.RUnlock()
	if ok {
		handler(client, msg)
	}
}

// RegisterHandler wires handler to run for every inbound message of
// msgType.
func (h *Hub) RegisterHandler(msgType string, handler MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[msgType] = handler
}

// JoinChannel adds clientID to channel — driver:{id}, ride:{id}, or
// available-drivers[:vehicleType].
func (h *Hub) JoinChannel(clientID, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client, ok := h.clients[clientID]
	if !ok {
		return
	}
	if _, ok := h.channels[channel]; !ok {
		h.channels[channel] = make(map[string]*Client)
	}
	h.channels[channel][clientID] = client
	client.joinChannel(channel)
}

// LeaveChannel removes clientID from channel.
func (h *Hub) LeaveChannel(clientID, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.channels[channel]; ok {
		delete(members, clientID)
		if len(members) == 0 {
			delete(h.channels, channel)
		}
	}
	if client, ok := h.clients[clientID]; ok {
		client.leaveChannel(channel)
	}
}

// SendToClient delivers msg to one connected client, dropping it
// silently if that client isn't connected.
func (h *Hub) SendToClient(clientID string, msg *Message) {
	h.Broadcast <- &broadcastMessage{target: "client", targetID: clientID, message: msg}
}

// SendToChannel delivers msg to every client currently in channel.
func (h *Hub) SendToChannel(channel string, msg *Message) {
	h.Broadcast <- &broadcastMessage{target: "channel", targetID: channel, message: msg}
}

// SendToAll delivers msg to every connected client.
func (h *Hub) SendToAll(msg *Message) {
	h.Broadcast <- &broadcastMessage{target: "all", message: msg}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ChannelSubscriberCount returns how many clients currently occupy
// channel — used to populate a Report's availableChannelSubscribers.
func (h *Hub) ChannelSubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// IsConnected reports whether clientID currently has a live socket.
// Presence, not availability.
func (h *Hub) IsConnected(clientID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[clientID]
	return ok
}

// ConnectedTransports returns the channels clientID's socket currently
// occupies (nil if it has no live connection) — internal/drivers
// surfaces this as a driver's ConnectedTransports, distinct from its
// isOnline flag.
func (h *Hub) ConnectedTransports(clientID string) []string {
	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	return client.Channels()
}
