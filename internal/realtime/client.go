package realtime

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/proktor-backend/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 64
)

// Client is one websocket connection attached to the hub. All hub-side
// state lives in the hub's run loop; the client only owns its connection
// and outbound queue.
type Client struct {
	ID     string
	UserID int
	Role   service.TokenType
	Name   string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	log  zerolog.Logger
}

func NewClient(id string, userID int, role service.TokenType, name string, hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:     id,
		UserID: userID,
		Role:   role,
		Name:   name,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		log:    hub.log.With().Str("connection_id", id).Logger(),
	}
}

func (c *Client) IsAdmin() bool {
	return c.Role == service.TokenTypeAdmin
}

// ReadPump relays inbound frames to the hub until the connection dies,
// then unregisters. Runs as its own goroutine, one per connection.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("invalid message frame")
			continue
		}
		c.hub.inbound <- &inboundMessage{client: c, msg: &msg}
	}
}

// WritePump drains the outbound queue and keeps the connection alive with
// pings. Runs as its own goroutine, one per connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

// Send marshals and queues one message. A full queue drops the message
// rather than blocking the hub loop; a slow consumer loses frames, the
// connection itself is reaped by its own ping timeout.
func (c *Client) Send(msgType MessageType, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		c.log.Error().Err(err).Str("type", string(msgType)).Msg("failed to marshal payload")
		return
	}
	data, err := json.Marshal(Message{Type: msgType, Payload: raw})
	if err != nil {
		c.log.Error().Err(err).Str("type", string(msgType)).Msg("failed to marshal message")
		return
	}
	select {
	case c.send <- data:
	default:
		c.log.Warn().Str("type", string(msgType)).Msg("send buffer full, dropping message")
	}
}

func (c *Client) sendError(message string) {
	c.Send(MessageTypeError, ErrorPayload{Message: message})
}
