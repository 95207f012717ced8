package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	readWait   = 5 * time.Minute
	sendBuffer = 32
)

// Conn wraps one member's attempt stream. All writes flow through the
// send channel; the write pump is the sole socket writer.
type Conn struct {
	sock      *websocket.Conn
	send      chan interface{}
	closeOnce sync.Once
	log       zerolog.Logger
}

// NewConn wraps an upgraded socket. The caller must run WritePump in
// its own goroutine and register the connection with the hub.
func NewConn(sock *websocket.Conn, log zerolog.Logger) *Conn {
	return &Conn{
		sock: sock,
		send: make(chan interface{}, sendBuffer),
		log:  log,
	}
}

// Send queues a message without blocking. Returns false when the
// buffer is full; the hub drops the connection in that case.
func (c *Conn) Send(v interface{}) bool {
	select {
	case c.send <- v:
		return true
	default:
		return false
	}
}

// SendError queues a typed error event.
func (c *Conn) SendError(msg string) bool {
	return c.Send(ErrorEvent{Event: EventError, Error: msg})
}

// Close ends the stream by closing the send channel, letting the write
// pump drain queued events first. Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// WritePump drains the send channel onto the socket. It exits when the
// hub closes the channel and takes the socket down with it.
func (c *Conn) WritePump() {
	defer c.sock.Close()

	for v := range c.send {
		c.sock.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.sock.WriteJSON(v); err != nil {
			c.log.Debug().Err(err).Msg("Stream write failed")
			return
		}
	}

	// Channel closed: say goodbye before dropping the socket.
	c.sock.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.sock.WriteMessage(websocket.CloseMessage, []byte{})
}

// ReadJSON reads the next client frame with a refreshed deadline. The
// client keeps the stream alive with ping actions.
func (c *Conn) ReadJSON(v interface{}) error {
	c.sock.SetReadDeadline(time.Now().Add(readWait))
	return c.sock.ReadJSON(v)
}
