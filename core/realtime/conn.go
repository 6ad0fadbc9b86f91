// Package realtime tracks live connections, their group subscriptions, and
// fans committed change events out to them.
package realtime

import (
	"context"

	"github.com/cargoroute/tracker/core/events"
)

// Conn is one live client connection. Send must respect ctx cancellation;
// implementations are responsible for their own write serialization.
type Conn interface {
	ID() string
	Send(ctx context.Context, ev events.Event) error
	Close() error
}
