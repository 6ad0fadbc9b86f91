package ws

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cargoroute/tracker/core/realtime"
	"github.com/cargoroute/tracker/infra/logger"
)

// command is a client-invokable group operation.
type command struct {
	Action string `json:"action"`
	Group  string `json:"group"`
}

// Handler upgrades HTTP requests to live connections and runs their read
// loops. Each accepted socket is registered with the hub under a fresh
// connection id.
type Handler struct {
	hub      *realtime.Hub
	upgrader websocket.Upgrader
	log      logger.Logger
}

// NewHandler creates a websocket Handler bound to the hub.
func NewHandler(hub *realtime.Hub) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The ops dashboard is served from arbitrary hosts in the
			// current deployment.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: logger.New("ws"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("upgrade: %v", err)
		return
	}
	id := uuid.NewString()
	conn := newConn(id, sock)
	h.hub.Register(conn)
	go h.readLoop(conn)
}

// readLoop handles join/leave commands until the socket dies, then tears the
// connection down exactly once.
func (h *Handler) readLoop(c *Conn) {
	defer h.hub.Unregister(c.ID())
	for {
		var cmd command
		if err := c.ws.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debugf("connection %s read: %v", c.ID(), err)
			}
			return
		}
		switch cmd.Action {
		case "join":
			if cmd.Group != "" {
				h.hub.JoinGroup(c.ID(), cmd.Group)
			}
		case "leave":
			if cmd.Group != "" {
				h.hub.LeaveGroup(c.ID(), cmd.Group)
			}
		default:
			h.log.Debugf("connection %s sent unknown action %q", c.ID(), cmd.Action)
		}
	}
}
