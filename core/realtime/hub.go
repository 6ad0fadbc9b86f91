package realtime

import (
	"fmt"
	"sync"

	"github.com/cargoroute/tracker/core/events"
	"github.com/cargoroute/tracker/core/logger"
)

// Hub is the connection lifecycle manager. It owns the live connection list,
// announces presence, and clears group membership on disconnect.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]Conn

	registry *Registry
	router   *Router
	log      logger.Logger
}

// NewHub creates a Hub over the given registry.
func NewHub(registry *Registry, log logger.Logger) (*Hub, error) {
	if registry == nil || log == nil {
		return nil, fmt.Errorf("realtime: nil parameter provided to NewHub")
	}
	return &Hub{conns: map[string]Conn{}, registry: registry, log: log}, nil
}

// SetRouter attaches the router used for presence announcements. Must be
// called before the first Register.
func (h *Hub) SetRouter(r *Router) { h.router = r }

// Register adds the connection and announces it to all clients.
func (h *Hub) Register(c Conn) {
	h.mu.Lock()
	h.conns[c.ID()] = c
	n := len(h.conns)
	h.mu.Unlock()

	h.log.Infof("connection %s registered (%d live)", c.ID(), n)
	if h.router != nil {
		h.router.Publish(events.UserConnected{ConnectionID: c.ID()}, ScopeAll)
	}
}

// Unregister removes the connection, announces the departure, and drops the
// connection from every group. The group drop happens unconditionally, even
// when the presence broadcast cannot be delivered.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	c, ok := h.conns[connID]
	delete(h.conns, connID)
	n := len(h.conns)
	h.mu.Unlock()
	if !ok {
		return
	}

	defer h.registry.DropConnection(connID)

	if h.router != nil {
		h.router.release(connID)
	}
	if err := c.Close(); err != nil {
		h.log.Debugf("close connection %s: %v", connID, err)
	}
	h.log.Infof("connection %s unregistered (%d live)", connID, n)
	if h.router != nil {
		h.router.Publish(events.UserDisconnected{ConnectionID: connID}, ScopeAll)
	}
}

// JoinGroup subscribes the connection to a group key.
func (h *Hub) JoinGroup(connID, groupKey string) {
	h.registry.Join(connID, groupKey)
	h.log.Debugf("connection %s joined %s", connID, groupKey)
}

// LeaveGroup unsubscribes the connection from a group key.
func (h *Hub) LeaveGroup(connID, groupKey string) {
	h.registry.Leave(connID, groupKey)
	h.log.Debugf("connection %s left %s", connID, groupKey)
}

// Connections returns a snapshot of the live connections.
func (h *Hub) Connections() []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	res := make([]Conn, 0, len(h.conns))
	for _, c := range h.conns {
		res = append(res, c)
	}
	return res
}

// Connection returns the live connection with the given id.
func (h *Hub) Connection(id string) (Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[id]
	return c, ok
}
