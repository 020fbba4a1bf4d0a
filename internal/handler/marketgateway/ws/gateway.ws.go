package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/krobus00/mt5-gateway/internal/entity"
	"github.com/krobus00/mt5-gateway/internal/service/gateway"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendQueueSize  = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Handler struct {
	gateway *gateway.Service
}

func NewMarketGatewayWSHandler(gatewayService *gateway.Service) *Handler {
	return &Handler{gateway: gatewayService}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.Serve)
}

// Serve upgrades the connection and runs it through the lifecycle:
// Connecting (upgrade) -> Open (confirmation + receive loop) -> Closing
// (transport error or shutdown) -> Closed (deregistered).
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Warnf("websocket upgrade failed: %v", err)
		return
	}

	client := newClient(conn)
	logrus.WithFields(logrus.Fields{
		"client_id":   client.id,
		"remote_addr": conn.RemoteAddr().String(),
	}).Info("websocket client accepted")

	go client.writePump()

	h.gateway.HandleConnect(r.Context(), client)
	h.readPump(r.Context(), client)
}

// readPump dispatches inbound frames synchronously so a single client's
// commands keep their order. It returns when the transport closes.
func (h *Handler) readPump(ctx context.Context, c *client) {
	defer func() {
		h.gateway.HandleDisconnect(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithField("client_id", c.id).Warnf("websocket read failed: %v", err)
			}
			return
		}

		h.gateway.HandleMessage(ctx, c, message)
	}
}

// client adapts one websocket connection to entity.Client. Outbound messages
// go through a buffered queue drained by writePump, so Send never blocks on
// the network.
type client struct {
	id   string
	conn *websocket.Conn
	send chan any

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan any, sendQueueSize),
		done: make(chan struct{}),
	}
}

func (c *client) ID() string {
	return c.id
}

// Close tears the transport down; the readPump sees the closed connection and
// finishes its own lifecycle. Idempotent.
func (c *client) Close() error {
	c.close()
	return nil
}

// Send enqueues msg for delivery. A closed transport or a full queue (a
// client that stopped draining) is reported as an error so callers can drop
// the client.
func (c *client) Send(msg any) error {
	select {
	case <-c.done:
		return entity.ErrClientClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return entity.ErrClientClosed
	default:
		return entity.ErrClientQueueFull
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				logrus.WithField("client_id", c.id).Warnf("websocket write failed: %v", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}
