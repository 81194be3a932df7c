package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"medius/internal/bus"
)

const writeTimeout = 10 * time.Second

// Event is anything the chat session publishes on the bus.
type Event interface {
	EventType() string
}

// Frame is what the local UI receives.
type Frame struct {
	Type    string `json:"type"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// Client is one UI socket. Writes are serialized since gorilla connections
// allow a single concurrent writer.
type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func NewClient(conn *websocket.Conn) *Client {
	return &Client{conn: conn}
}

func (c *Client) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Hub manages the UI sockets keyed by deal ID. The first socket of a deal
// subscribes to the deal's bus topic; the last one to leave unsubscribes.
type Hub struct {
	bus    bus.MessageBus
	logger *zap.Logger

	mu    sync.Mutex
	conns map[string]map[*Client]struct{}
	subs  map[string]bus.Subscription
}

func NewHub(b bus.MessageBus, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		bus:    b,
		logger: logger.Named("hub"),
		conns:  make(map[string]map[*Client]struct{}),
		subs:   make(map[string]bus.Subscription),
	}
}

// Register adds a socket for the given deal.
func (h *Hub) Register(dealID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conns[dealID] == nil {
		h.conns[dealID] = make(map[*Client]struct{})
		sub := h.bus.Subscribe(bus.DealTopic(dealID))
		h.subs[dealID] = sub
		go h.forward(dealID, sub)
	}
	h.conns[dealID][c] = struct{}{}
}

// Unregister removes a socket for the given deal.
func (h *Hub) Unregister(dealID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.conns[dealID]
	if !ok {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.conns, dealID)
		if sub, ok := h.subs[dealID]; ok {
			delete(h.subs, dealID)
			h.bus.Unsubscribe(sub)
		}
	}
}

// Count returns the number of sockets open for the deal.
func (h *Hub) Count(dealID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[dealID])
}

// BroadcastToDeal sends the payload to every socket of the deal. Sockets
// that fail are closed; their handler unregisters them.
func (h *Hub) BroadcastToDeal(dealID string, payload any) {
	for _, c := range h.clients(dealID) {
		if err := c.WriteJSON(payload); err != nil {
			h.logger.Debug("drop socket", zap.String("deal_id", dealID), zap.Error(err))
			_ = c.Close()
		}
	}
}

// BroadcastAll sends the payload to every socket.
func (h *Hub) BroadcastAll(payload any) {
	h.mu.Lock()
	deals := make([]string, 0, len(h.conns))
	for id := range h.conns {
		deals = append(deals, id)
	}
	h.mu.Unlock()

	for _, id := range deals {
		h.BroadcastToDeal(id, payload)
	}
}

// Shutdown tells every socket the bridge is going away and closes them.
func (h *Hub) Shutdown() {
	h.BroadcastAll(Frame{Type: "shutdown"})
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conns := range h.conns {
		for c := range conns {
			_ = c.Close()
		}
	}
}

func (h *Hub) clients(dealID string) []*Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Client, 0, len(h.conns[dealID]))
	for c := range h.conns[dealID] {
		out = append(out, c)
	}
	return out
}

func (h *Hub) forward(dealID string, sub bus.Subscription) {
	for msg := range sub {
		ev, ok := msg.(Event)
		if !ok {
			h.logger.Warn("unexpected bus payload", zap.String("deal_id", dealID))
			continue
		}
		h.BroadcastToDeal(dealID, Frame{Type: ev.EventType(), Data: ev})
	}
}
