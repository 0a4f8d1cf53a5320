// Package hub pushes the monitor view, alerts and siren state to dashboard websockets.
package hub

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/lucaslui/minermonitor/internal/alerting"
	"github.com/lucaslui/minermonitor/internal/model"
)

// Message types sent to clients.
const (
	TypeView  = "view"
	TypeAlert = "alert"
	TypeSiren = "siren"
)

type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type SirenState struct {
	On    bool         `json:"on"`
	Alert *model.Alert `json:"alert,omitempty"`
}

// Hub maintains the set of active clients and broadcasts messages to them. Views and
// alerts never block the caller and are dropped when the queue is full. Siren changes
// wait for the queue until the hub stops. The latest view and siren state are replayed
// to clients that connect later.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	logger     *log.Logger

	mu        sync.RWMutex
	lastView  []byte
	lastSiren []byte
}

func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		clients:    map[*Client]struct{}{},
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return nil

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.logger.Printf("[ws] client registered: %s (%d connected)", c.remote, len(h.clients))
			view, siren := h.latest()
			if view != nil {
				h.offer(c, view)
			}
			if siren != nil {
				h.offer(c, siren)
			}

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.logger.Printf("[ws] client unregistered: %s", c.remote)
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				h.offer(c, msg)
			}
		}
	}
}

// offer drops a client whose send buffer is full.
func (h *Hub) offer(c *Client, msg []byte) {
	select {
	case c.send <- msg:
	default:
		h.logger.Printf("[ws] client %s send buffer full, removing", c.remote)
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) latest() (view, siren []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastView, h.lastSiren
}

func (h *Hub) encode(kind string, payload any) []byte {
	msg, err := json.Marshal(envelope{Type: kind, Payload: payload})
	if err != nil {
		h.logger.Printf("[ws] encode %s: %v", kind, err)
		return nil
	}
	return msg
}

func (h *Hub) publish(kind string, payload any) []byte {
	msg := h.encode(kind, payload)
	if msg == nil {
		return nil
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Printf("[ws] broadcast queue full, dropping %s", kind)
	}
	return msg
}

// BroadcastView is registered as a monitor listener. The latest view is replayed to
// clients that connect later.
func (h *Hub) BroadcastView(v alerting.View) {
	if msg := h.publish(TypeView, v); msg != nil {
		h.mu.Lock()
		h.lastView = msg
		h.mu.Unlock()
	}
}

func (h *Hub) Notify(_ context.Context, ev model.AlertEvent) error {
	h.publish(TypeAlert, ev)
	return nil
}

// Start and Stop let the hub drive the dashboard siren.
func (h *Hub) Start(a model.Alert) { h.siren(SirenState{On: true, Alert: &a}) }
func (h *Hub) Stop()               { h.siren(SirenState{On: false}) }

func (h *Hub) siren(st SirenState) {
	msg := h.encode(TypeSiren, st)
	if msg == nil {
		return
	}
	h.mu.Lock()
	h.lastSiren = msg
	h.mu.Unlock()
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}
