// Package wschannel implements the /sovereign/ws push channel (spec §6):
// "WebSocket | Push channel for alerts (api_key_alert, agent_blocked,
// constitution_amended)." It is both a notify.Channel (fan-out target) and
// an http.HandlerFunc (the upgrade endpoint itself).
package wschannel

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard and the API are served from the same origin in every
	// deployment this module targets; a same-origin check would need
	// configuration this package has no business owning.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Authorize validates the caller before the connection is accepted. It
// receives the raw request so it can inspect a query-string token (browsers
// cannot set arbitrary headers on the WebSocket handshake). A nil Authorize
// accepts every connection.
type Authorize func(r *http.Request) error

// Channel fans alerts out to every connected /sovereign/ws client and
// implements notify.Channel so it can sit in the same Hub as chat/webhook
// channels.
type Channel struct {
	authorize Authorize
	logger    *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// New creates a websocket Channel. authorize may be nil in development.
func New(authorize Authorize, logger *slog.Logger) *Channel {
	return &Channel{
		authorize: authorize,
		logger:    logger,
		clients:   make(map[*websocket.Conn]struct{}),
	}
}

// Name identifies this channel kind in logs.
func (c *Channel) Name() string { return "websocket" }

// ServeHTTP upgrades the connection and keeps it registered until the client
// disconnects. It does not expect any inbound traffic from the client; it
// only reads to detect close frames and drop the connection.
func (c *Channel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if c.authorize != nil {
		if err := c.authorize(r); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.Warn("sovereign/ws upgrade failed", "error", err)
		return
	}

	c.register(conn)
	defer c.unregister(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Channel) register(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients[conn] = struct{}{}
}

func (c *Channel) unregister(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.clients, conn)
	conn.Close()
}

type message struct {
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sent_at"`
}

// Send pushes subject/body as a JSON frame to every connected client.
// Connections that fail to write are dropped.
func (c *Channel) Send(_ context.Context, subject, body string) error {
	msg, err := json.Marshal(message{Subject: subject, Body: body, SentAt: time.Now()})
	if err != nil {
		return err
	}

	c.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(c.clients))
	for conn := range c.clients {
		conns = append(conns, conn)
	}
	c.mu.Unlock()

	var failed []*websocket.Conn
	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			failed = append(failed, conn)
		}
	}

	for _, conn := range failed {
		c.unregister(conn)
	}

	if len(conns) == 0 {
		return nil
	}
	if len(failed) == len(conns) {
		return errors.New("all websocket clients failed to receive the message")
	}
	return nil
}
