package http

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"classroom-quiz-service/internal/app"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 64
)

var (
	errClientClosed = errors.New("client closed")
	errSlowClient   = errors.New("client send buffer full")
)

type outboundMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Payload   any    `json:"payload"`
}

// client is one websocket connection. All writes go through send and are
// performed by writePump, so the socket has a single writer.
type client struct {
	id     string
	conn   *websocket.Conn
	send   chan outboundMessage
	done   chan struct{}
	logger *slog.Logger

	closeOnce sync.Once
}

var _ app.Conn = (*client)(nil)

func newClient(conn *websocket.Conn, buffer int, logger *slog.Logger) *client {
	id := uuid.NewString()
	return &client{
		id:     id,
		conn:   conn,
		send:   make(chan outboundMessage, buffer),
		done:   make(chan struct{}),
		logger: logger.With("conn_id", id),
	}
}

func (c *client) ID() string {
	return c.id
}

// Send enqueues a room event.
func (c *client) Send(event app.Event) error {
	return c.enqueue(outboundMessage{Type: string(event.Type), Payload: event.Payload})
}

// enqueue never blocks. A client that cannot keep up is closed.
func (c *client) enqueue(msg outboundMessage) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return errClientClosed
	default:
		c.logger.Warn("closing slow client", "message", msg.Type)
		c.close()
		return errSlowClient
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Debug("ws write failed", "error", err)
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
