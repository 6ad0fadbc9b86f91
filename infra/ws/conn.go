// Package ws exposes the live channel over WebSocket. Server-pushed frames
// are JSON envelopes {"event": name, "data": payload}; clients send
// {"action": "join"|"leave", "group": key} commands.
package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cargoroute/tracker/core/events"
)

// ErrConnClosed is returned by Send after the connection has been closed.
var ErrConnClosed = errors.New("connection closed")

// frame is the wire envelope for server-pushed events.
type frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Conn adapts a gorilla websocket connection to the realtime.Conn contract.
// Writes are serialized; the websocket protocol forbids concurrent writers.
type Conn struct {
	id string
	ws *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func newConn(id string, ws *websocket.Conn) *Conn {
	return &Conn{id: id, ws: ws}
}

// ID returns the connection id assigned at upgrade time.
func (c *Conn) ID() string { return c.id }

// Send writes the event envelope, honoring the ctx deadline as the write
// deadline. A failed or timed-out write poisons the websocket for all later
// writes, so the socket is closed; the handler's read loop then observes the
// closure and unregisters the connection.
func (c *Conn) Send(ctx context.Context, ev events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	deadline := time.Now().Add(5 * time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return c.abandon(err)
	}
	if err := c.ws.WriteJSON(frame{Event: ev.Name(), Data: ev}); err != nil {
		return c.abandon(err)
	}
	return nil
}

// abandon closes the socket after a write failure. Callers hold c.mu.
func (c *Conn) abandon(err error) error {
	c.closed = true
	_ = c.ws.Close()
	return err
}

// Close shuts the socket down. Safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.ws.Close()
}
