// ABOUTME: Conn wraps a websocket with a bounded send buffer and a single write loop
// ABOUTME: Implements routing.Channel; Send never blocks and Close is idempotent

package transport

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/2389/salesdesk-gateway/internal/routing"
)

// Options tune a connection's buffering and keepalive.
type Options struct {
	SendBuffer      int
	MaxMessageBytes int64
	PingInterval    time.Duration
	PongTimeout     time.Duration
	WriteTimeout    time.Duration
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 128
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 1 << 20
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 60 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	return o
}

type closeFrame struct {
	code   int
	reason string
}

// Conn is one WebSocket session.
type Conn struct {
	id     string
	ws     *websocket.Conn
	opts   Options
	logger *slog.Logger

	send chan []byte
	done chan struct{}

	closeOnce sync.Once
	closing   chan closeFrame
}

// NewConn wraps ws. Start must be called to run the write loop.
func NewConn(ws *websocket.Conn, opts Options, logger *slog.Logger) *Conn {
	opts = opts.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Conn{
		id:      id,
		ws:      ws,
		opts:    opts,
		logger:  logger.With("conn_id", id),
		send:    make(chan []byte, opts.SendBuffer),
		done:    make(chan struct{}),
		closing: make(chan closeFrame, 1),
	}
}

// ID identifies this connection, distinct across reconnects of the same user.
func (c *Conn) ID() string { return c.id }

// Send enqueues ev. It reports false once the connection is closed or when the
// buffer is full, in which case the connection is closed.
func (c *Conn) Send(ev routing.Event) bool {
	payload, err := json.Marshal(ev)
	if err != nil {
		c.logger.Error("encoding event", "event", ev.Name, "error", err)
		return false
	}

	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- payload:
		return true
	case <-c.done:
		return false
	default:
		c.logger.Warn("send buffer full, closing", "event", ev.Name)
		c.Close(websocket.CloseTryAgainLater, "send buffer full")
		return false
	}
}

// Close sends a close frame with code and reason, then tears the socket down.
// Only the first call has any effect.
func (c *Conn) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closing <- closeFrame{code: code, reason: reason}
		close(c.done)
	})
}

// Done is closed once Close has been called.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Start launches the write loop.
func (c *Conn) Start() {
	go c.writeLoop()
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			if err := c.write(websocket.TextMessage, payload); err != nil {
				c.logger.Debug("write failed", "error", err)
				c.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("ping failed", "error", err)
				c.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		case <-c.done:
			c.drain()
			f := <-c.closing
			msg := websocket.FormatCloseMessage(f.code, f.reason)
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteTimeout))
			return
		}
	}
}

// drain flushes whatever was queued before Close, best effort.
func (c *Conn) drain() {
	for {
		select {
		case payload := <-c.send:
			if err := c.write(websocket.TextMessage, payload); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}

// prepareRead applies the read limit and pong-driven read deadline.
func (c *Conn) prepareRead() {
	c.ws.SetReadLimit(c.opts.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	})
}
