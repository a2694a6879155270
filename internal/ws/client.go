package ws

import (
	"context"
	"sync"
	"time"

	"echosphere/internal/mirror"

	"github.com/gorilla/websocket"
	jww "github.com/spf13/jwalterweatherman"
)

// Client is one websocket subscription to a mirror query.
type Client struct {
	UserID   uint
	Query    mirror.Query
	ctx      context.Context
	cancel   context.CancelFunc
	conn     *websocket.Conn
	send     chan []byte
	mu       sync.RWMutex
	isClosed bool
	// visible holds the keys a scoped client has been shown. Only the
	// feed goroutine touches it.
	visible  map[string]struct{}
}

// NewClient wraps conn for userID. The client is cancelled with ctx.
func NewClient(ctx context.Context, conn *websocket.Conn, userID uint, q mirror.Query) *Client {
	ctx, cancel := context.WithCancel(ctx)

	return &Client{
		UserID:  userID,
		Query:   q,
		ctx:     ctx,
		cancel:  cancel,
		conn:    conn,
		send:    make(chan []byte, maxSendChannelSize),
		visible: make(map[string]struct{}),
	}
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

// ReadPump discards inbound frames and returns when the peer goes away.
func (c *Client) ReadPump() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				jww.DEBUG.Printf("ws: client %d read error: %v", c.UserID, err)
			}
			return
		}
	}
}

// WritePump writes queued frames, one per websocket message, and pings the
// peer.
func (c *Client) WritePump() error {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return nil
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return err
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

// SendJSON encodes v and queues it like SendRaw.
func (c *Client) SendJSON(v any) bool {
	data, ok := encodeFrame(v)
	if !ok {
		return false
	}
	return c.SendRaw(data)
}

// SendError queues an error frame carrying msg.
func (c *Client) SendError(msg string) bool {
	return c.SendJSON(errorFrame{Type: "error", Message: msg})
}

// SendRaw queues data without blocking; a full buffer drops it.
func (c *Client) SendRaw(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.isClosed {
		return false
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close stops the client. Frames already queued are still flushed by
// WritePump before it sends the close message.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosed {
		return
	}

	c.isClosed = true
	c.cancel()
	close(c.send)
}

// IsClosed reports whether Close has run.
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isClosed
}
