// Package ws carries realtime sessions over gorilla/websocket.
package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	closeWait      = time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 256
)

var errBufferFull = errors.New("send buffer full")

// Connection wraps a websocket and serialises outbound writes through a
// buffered channel drained by a single writer goroutine.
type Connection struct {
	id     string
	userID int64

	ws     *websocket.Conn
	send   chan []byte
	once   sync.Once
	closed chan struct{}

	pingPeriod time.Duration
}

func NewConnection(userID int64, ws *websocket.Conn) *Connection {
	return &Connection{
		id:         uuid.NewString(),
		userID:     userID,
		ws:         ws,
		send:       make(chan []byte, sendBuffer),
		closed:     make(chan struct{}),
		pingPeriod: pingPeriod,
	}
}

func (c *Connection) ID() string     { return c.id }
func (c *Connection) UserID() int64 { return c.userID }

// Start launches the writer. It must be called once.
func (c *Connection) Start() {
	go c.writeLoop()
}

// Send queues frame. A client that lets the buffer fill up is
// disconnected.
func (c *Connection) Send(frame []byte) error {
	select {
	case <-c.closed:
		return common.ErrConnectionClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	default:
		c.closeWith(websocket.ClosePolicyViolation, "send buffer full")
		return errBufferFull
	}
}

// Close sends a normal close frame and tears the socket down. It returns
// without waiting for the peer.
func (c *Connection) Close() {
	c.closeWith(websocket.CloseNormalClosure, "")
}

// closeWith marks the connection closed at once and never blocks: the close
// frame and the socket teardown run on their own goroutine.
func (c *Connection) closeWith(code int, reason string) {
	c.once.Do(func() {
		close(c.closed)
		go func() {
			_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(closeWait))
			_ = c.ws.Close()
		}()
	})
}

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} {
	return c.closed
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				c.closeWith(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.closeWith(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

func (c *Connection) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}

// ReadLoop delivers every inbound text frame to handle until the peer goes
// away, a read fails or the connection is closed.
func (c *Connection) ReadLoop(handle func(frame []byte)) error {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			select {
			case <-c.closed:
				return nil
			default:
			}
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		handle(frame)
	}
}
