package websocket

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// client is one connected UI session
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message
	done chan struct{}
}

func newClient(hub *Hub, conn *websocket.Conn) *client {
	return &client{
		hub:  hub,
		conn: conn,
		send: make(chan Message, 16),
		done: make(chan struct{}),
	}
}

// enqueue queues a message, dropping it when the client is backed up.
// Status messages are periodic, so a dropped one is replaced shortly.
func (c *client) enqueue(msg Message) {
	select {
	case c.send <- msg:
	default:
	}
}

// writePump serializes all writes to the connection
func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			data, ok := c.hub.marshal(msg)
			if !ok {
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains inbound frames (the UI sends nothing meaningful) and
// keeps the pong deadline fresh.
func (c *client) readPump() {
	defer func() {
		close(c.done)
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket client read error",
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}
