package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	// Outbound frames buffered per client before deliveries get dropped
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Browser clients connect from a separate origin; the bearer
		// token is the actual gate.
		return true
	},
}

// Client wraps one duplex connection. The hub holds a non-owning reference;
// the read pump owns the connection's lifecycle and triggers teardown when
// it exits.
type Client struct {
	id       string
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	identity Identity

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewClient builds a client for an accepted connection. identity must
// already be verified; a zero UserID means the transport is unauthenticated
// and subscribe frames are taken at their claimed word.
func NewClient(hub *Hub, conn *websocket.Conn, identity Identity) *Client {
	return &Client{
		id:       uuid.New().String(),
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		identity: identity,
		done:     make(chan struct{}),
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) Identity() Identity {
	return c.identity
}

// isClosed reports whether the connection should be treated as gone. A
// closed client is skipped by broadcasts and reaped by the stale sweep.
func (c *Client) isClosed() bool {
	return c.closed.Load()
}

// markClosed flips the liveness flag and releases the write pump. Safe to
// call more than once.
func (c *Client) markClosed() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
	})
}

// enqueue hands a frame to the write pump without blocking. It reports false
// when the client is closed or its buffer is full; the frame is then dropped
// for this client only.
func (c *Client) enqueue(payload []byte) bool {
	if c.isClosed() {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// readPump relays inbound frames into the registry until the connection
// dies, then runs the one teardown for this client.
func (c *Client) readPump() {
	defer func() {
		c.markClosed()
		c.hub.Teardown(c)
		if err := c.conn.Close(); err != nil {
			slog.Debug("error closing connection", "clientID", c.id, "error", err)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("websocket read error", "clientID", c.id, "userID", c.identity.UserID, "error", err)
			} else {
				slog.Debug("websocket connection closed", "clientID", c.id, "userID", c.identity.UserID)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(messageBytes, &frame); err != nil {
			slog.Debug("ignoring malformed inbound frame", "clientID", c.id, "error", err)
			continue
		}

		switch frame.Type {
		case "subscribe":
			c.hub.Subscribe(frame.ChannelName, c, frame.UserID)
		default:
			// Unrecognized inbound frames are ignored, not rejected.
			slog.Debug("ignoring inbound frame", "clientID", c.id, "type", frame.Type)
		}
	}
}

// writePump drains the send buffer onto the wire and keeps the connection
// alive with pings. It never touches registry state.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.markClosed()
	}()

	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				slog.Debug("write error", "clientID", c.id, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Debug("ping error", "clientID", c.id, "error", err)
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// ServeWS upgrades an authenticated HTTP request and starts the client
// pumps. identity comes from the credential check performed by the caller;
// the hub never re-validates it.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request, identity Identity) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade websocket connection", "userID", identity.UserID, "error", err)
		return
	}

	client := NewClient(hub, conn, identity)
	hub.Register(client)
	slog.Info("websocket connection established", "clientID", client.id, "userID", identity.UserID)

	go client.writePump()
	go client.readPump()
}
