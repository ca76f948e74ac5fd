package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Hub fans notifications out to connected dashboard clients, grouped by
// dealership. A notification for tenant A is never written to a client
// registered under tenant B.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[int64]map[*Client]struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[int64]map[*Client]struct{}),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.dealershipID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.dealershipID] = set
	}
	set[c] = struct{}{}
	h.logger.Info("ws client connected", "dealership", c.dealershipID, "user", c.userID)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.dealershipID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.dealershipID)
	}
	h.logger.Info("ws client disconnected", "dealership", c.dealershipID, "user", c.userID)
}

// Broadcast delivers n to every client of its dealership. Invalid
// notifications are dropped with an error return; slow clients are
// disconnected rather than allowed to block the hub.
func (h *Hub) Broadcast(n Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients[n.DealershipID]))
	for c := range h.clients[n.DealershipID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- payload:
		default:
			// Send buffer full: the client stopped reading.
			h.unregister(c)
			c.close()
		}
	}
	return nil
}

// ClientCount reports connected clients for one dealership.
func (h *Hub) ClientCount(dealershipID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[dealershipID])
}

// CloseAll disconnects every client, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for did, set := range h.clients {
		for c := range set {
			c.close()
		}
		delete(h.clients, did)
	}
}
