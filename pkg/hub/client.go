package hub

import (
	"slices"
	"time"

	fws "github.com/fasthttp/websocket"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 64 * 1024           // detections and utterances are small
	sendBuffer     = 64
)

// Client is one websocket connection registered with a Hub.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan Message
}

// NewClient registers conn with hub. It returns nil when the hub has stopped.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	c := &Client{
		id:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan Message, sendBuffer),
	}
	select {
	case hub.register <- c:
		return c
	case <-hub.done:
		return nil
	}
}

// ID identifies the client in logs.
func (c *Client) ID() string {
	return c.id
}

// Run pumps messages until the connection closes. Only the write pump
// writes to the connection once Run has started.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if fws.IsUnexpectedCloseError(err, fws.CloseGoingAway, fws.CloseNormalClosure) {
				c.hub.logger.Debug("client read failed", "client", c.id, "error", err)
			}
			return
		}
		if kind == websocket.TextMessage && c.hub.handler != nil {
			c.hub.handler(c, data)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.closeFrame()
				return
			}
			batch, open := c.drain(msg)
			for _, m := range batch {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteMessage(websocket.TextMessage, m.Data); err != nil {
					return
				}
			}
			if !open {
				c.closeFrame()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drain returns msg followed by whatever is already queued, keeping only the
// newest message per topic. open is false when the hub closed the queue.
func (c *Client) drain(msg Message) (batch []Message, open bool) {
	batch = []Message{msg}
	for range len(c.send) {
		m, ok := <-c.send
		if !ok {
			return batch, false
		}
		if m.Topic != "" {
			batch = slices.DeleteFunc(batch, func(q Message) bool { return q.Topic == m.Topic })
		}
		batch = append(batch, m)
	}
	return batch, true
}

func (c *Client) closeFrame() {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
