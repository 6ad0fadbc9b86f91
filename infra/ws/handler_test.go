package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cargoroute/tracker/core/events"
	"github.com/cargoroute/tracker/core/realtime"
	"github.com/cargoroute/tracker/infra/logger"
)

type wireFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) (*realtime.Hub, *realtime.Router, *realtime.Registry, *httptest.Server) {
	t.Helper()
	reg := realtime.NewRegistry()
	hub, err := realtime.NewHub(reg, logger.NopLogger{})
	require.NoError(t, err)
	router, err := realtime.NewRouter(hub, reg, time.Second, logger.NopLogger{}, nil)
	require.NoError(t, err)
	hub.SetRouter(router)

	srv := httptest.NewServer(NewHandler(hub))
	t.Cleanup(srv.Close)
	return hub, router, reg, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readEvent reads frames until one with the wanted event name arrives.
// Presence announcements for other connections may interleave.
func readEvent(t *testing.T, conn *websocket.Conn, name string) wireFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var f wireFrame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Event == name {
			return f
		}
	}
}

func TestConnectRegistersWithHub(t *testing.T) {
	hub, _, _, srv := newTestServer(t)
	_ = dial(t, srv)

	assert.Eventually(t, func() bool {
		return len(hub.Connections()) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestBroadcastReachesClient(t *testing.T) {
	hub, router, _, srv := newTestServer(t)
	conn := dial(t, srv)
	require.Eventually(t, func() bool {
		return len(hub.Connections()) == 1
	}, time.Second, 10*time.Millisecond)

	router.Publish(events.VehicleLocationUpdated{VehicleID: 7, Latitude: 48.85, Longitude: 2.35}, realtime.ScopeAll)

	f := readEvent(t, conn, "VehicleLocationUpdated")
	var payload events.VehicleLocationUpdated
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.Equal(t, int64(7), payload.VehicleID)
	assert.InDelta(t, 48.85, payload.Latitude, 1e-9)
}

func TestJoinScopesGroup(t *testing.T) {
	hub, router, reg, srv := newTestServer(t)
	member := dial(t, srv)
	outsider := dial(t, srv)
	require.Eventually(t, func() bool {
		return len(hub.Connections()) == 2
	}, time.Second, 10*time.Millisecond)

	group := events.VehicleGroup(7)
	require.NoError(t, member.WriteJSON(command{Action: "join", Group: group}))

	// The join command is processed asynchronously by the read loop.
	require.Eventually(t, func() bool {
		return len(reg.Members(group)) == 1
	}, time.Second, 10*time.Millisecond)

	router.Publish(events.VehicleStatusUpdated{VehicleID: 7}, realtime.GroupScope(group))
	readEvent(t, member, "VehicleStatusUpdated")

	// The outsider only ever sees presence traffic.
	require.NoError(t, outsider.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	for {
		var f wireFrame
		if err := outsider.ReadJSON(&f); err != nil {
			break
		}
		assert.NotEqual(t, "VehicleStatusUpdated", f.Event)
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	hub, _, _, srv := newTestServer(t)
	conn := dial(t, srv)
	require.Eventually(t, func() bool {
		return len(hub.Connections()) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return len(hub.Connections()) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestSendFailureClosesConnection(t *testing.T) {
	hub, _, _, srv := newTestServer(t)
	_ = dial(t, srv)
	require.Eventually(t, func() bool {
		return len(hub.Connections()) == 1
	}, time.Second, 10*time.Millisecond)

	sc, ok := hub.Connections()[0].(*Conn)
	require.True(t, ok)
	require.NoError(t, sc.ws.NetConn().Close())

	err := sc.Send(context.Background(), events.NewAlert{AlertID: 1})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrConnClosed)

	// The websocket stays poisoned after a write failure, so later sends
	// short-circuit instead of writing garbage frames.
	err = sc.Send(context.Background(), events.NewAlert{AlertID: 2})
	assert.ErrorIs(t, err, ErrConnClosed)

	// The read loop observes the closed socket and unregisters.
	assert.Eventually(t, func() bool {
		return len(hub.Connections()) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestSendAfterCloseFails(t *testing.T) {
	c := newConn("x", &websocket.Conn{})
	c.closed = true
	err := c.Send(context.Background(), events.NewAlert{})
	assert.ErrorIs(t, err, ErrConnClosed)
}
