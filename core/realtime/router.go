package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cargoroute/tracker/core/events"
	"github.com/cargoroute/tracker/core/logger"
	"github.com/cargoroute/tracker/core/metrics"
)

// outboxDepth bounds the per-connection outbound queue. Events beyond the
// bound are dropped for that connection only.
const outboxDepth = 256

// Scope selects the target connection set for a publish. The zero value
// addresses all connections; a non-empty Group addresses that group's
// subscribers.
type Scope struct {
	Group string
}

// ScopeAll addresses every live connection.
var ScopeAll = Scope{}

// GroupScope addresses the subscribers of one group key.
func GroupScope(key string) Scope { return Scope{Group: key} }

// Router resolves a change event to its target connections and delivers it
// best-effort. Each connection has its own outbound queue drained by a single
// writer, so events arrive in publish order per connection while a slow or
// dead connection never blocks the others and never fails the mutation that
// produced the event.
type Router struct {
	hub      *Hub
	registry *Registry
	timeout  time.Duration
	log      logger.Logger
	sink     metrics.Sink

	mu       sync.Mutex
	outboxes map[string]chan events.Event
}

// NewRouter creates a Router. If timeout is zero, a default of five seconds
// is used.
func NewRouter(hub *Hub, registry *Registry, timeout time.Duration, log logger.Logger, sink metrics.Sink) (*Router, error) {
	if hub == nil || registry == nil || log == nil {
		return nil, fmt.Errorf("realtime: nil parameter provided to NewRouter")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Router{
		hub:      hub,
		registry: registry,
		timeout:  timeout,
		log:      log,
		sink:     sink,
		outboxes: map[string]chan events.Event{},
	}, nil
}

// Publish delivers the event to every connection in scope, fire-and-forget.
func (r *Router) Publish(ev events.Event, scope Scope) {
	for _, c := range r.resolve(scope) {
		r.enqueue(c, ev)
	}
}

// Run consumes committed change events until the context is canceled. The
// current broadcast policy delivers every event to all connections; the
// group scope exists for targeted delivery.
func (r *Router) Run(ctx context.Context, evs <-chan events.Event) {
	for {
		select {
		case ev, ok := <-evs:
			if !ok {
				return
			}
			r.Publish(ev, ScopeAll)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Router) resolve(scope Scope) []Conn {
	if scope.Group == "" {
		return r.hub.Connections()
	}
	ids := r.registry.Members(scope.Group)
	conns := make([]Conn, 0, len(ids))
	for _, id := range ids {
		if c, ok := r.hub.Connection(id); ok {
			conns = append(conns, c)
		}
	}
	return conns
}

// enqueue places the event on the connection's outbound queue, starting the
// queue's writer on first use. A full queue drops the event for that
// connection only.
func (r *Router) enqueue(c Conn, ev events.Event) {
	r.mu.Lock()
	ch, ok := r.outboxes[c.ID()]
	if !ok {
		if _, live := r.hub.Connection(c.ID()); !live {
			r.mu.Unlock()
			return
		}
		ch = make(chan events.Event, outboxDepth)
		r.outboxes[c.ID()] = ch
		go r.drain(c, ch)
	}
	r.mu.Unlock()

	select {
	case ch <- ev:
	default:
		r.sink.RecordSend(ev.Name(), false, 0)
		r.log.Warnf("outbound queue full, dropping %s for %s", ev.Name(), c.ID())
	}
}

// drain is the connection's single writer. It preserves enqueue order and
// exits when release closes the queue.
func (r *Router) drain(c Conn, ch <-chan events.Event) {
	for ev := range ch {
		r.send(c, ev)
	}
}

// release tears down the connection's outbound queue. Called by the hub once
// per connection, on unregister.
func (r *Router) release(connID string) {
	r.mu.Lock()
	ch, ok := r.outboxes[connID]
	delete(r.outboxes, connID)
	r.mu.Unlock()
	if ok {
		close(ch)
	}
}

func (r *Router) send(c Conn, ev events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	start := time.Now()
	err := c.Send(ctx, ev)
	r.sink.RecordSend(ev.Name(), err == nil, time.Since(start))
	if err != nil {
		r.log.Warnf("send %s to %s: %v", ev.Name(), c.ID(), err)
	}
}
