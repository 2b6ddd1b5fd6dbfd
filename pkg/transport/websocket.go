package transport

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const wsReadLimit = 1 << 20

// WSConn is a client-side WebSocket connection with a read pump and a write pump.
type WSConn struct {
	id     uuid.UUID
	conn   *websocket.Conn
	config ConnectionConfig
	send   chan []byte

	onMessage MessageHandler
	onClose   OnCloseHandler

	done      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
	mu        sync.RWMutex

	logger *slog.Logger
}

var _ Conn = (*WSConn)(nil)

func NewWSConn(conn *websocket.Conn, config ConnectionConfig, onMessage MessageHandler, onClose OnCloseHandler, logger *slog.Logger) *WSConn {
	id := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	if conn != nil {
		conn.SetReadLimit(wsReadLimit)
	}
	return &WSConn{
		id:        id,
		conn:      conn,
		config:    config,
		send:      make(chan []byte, config.sendBuffer()),
		onMessage: onMessage,
		onClose:   onClose,
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger.With(slog.String("connID", id.String()), slog.String("mode", string(ModeWebSocket))),
	}
}

func (c *WSConn) ID() uuid.UUID { return c.id }
func (c *WSConn) Mode() Mode    { return ModeWebSocket }

func (c *WSConn) Done() <-chan struct{} { return c.done }

func (c *WSConn) Run() {
	go c.readPump()
	go c.writePump()
	c.logger.Debug("connection established")
}

func (c *WSConn) readPump() {
	var readErr error
	defer func() {
		c.Close(readErr)
	}()

	for {
		readCtx, cancelRead := c.ctx, context.CancelFunc(func() {})
		if c.config.ReadTimeout > 0 {
			readCtx, cancelRead = context.WithTimeout(c.ctx, c.config.ReadTimeout)
		}
		typ, r, err := c.conn.Reader(readCtx)
		if err != nil {
			cancelRead()
			readErr = err
			return
		}
		if typ != websocket.MessageText && typ != websocket.MessageBinary {
			cancelRead()
			continue
		}
		message, err := io.ReadAll(r)
		cancelRead()
		if err != nil {
			readErr = err
			return
		}
		if c.onMessage != nil {
			c.onMessage(c.ctx, c.id, message)
		}
	}
}

func (c *WSConn) writePump() {
	var writeErr error
	defer func() {
		c.Close(writeErr)
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.conn.Write(c.ctx, websocket.MessageText, message); err != nil {
				writeErr = err
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *WSConn) Send(message []byte) bool {
	select {
	case <-c.ctx.Done():
		c.logger.Warn("Attempted to send on a closed connection")
		return false
	default:
	}
	select {
	case c.send <- message:
		return true
	default:
		c.logger.Warn("Send queue full, dropping frame", slog.Int("size", len(message)))
		return false
	}
}

// Close is idempotent. The first error passed in is reported to onClose.
func (c *WSConn) Close(err error) {
	c.closeOnce.Do(func() {
		status := websocket.CloseStatus(err)
		c.logger.Debug("Transport connection closing", slog.Any("reason", err), slog.String("status", status.String()))

		c.cancel()
		if c.conn != nil {
			c.conn.Close(websocket.StatusNormalClosure, "")
		}
		c.mu.Lock()
		c.closeErr = err
		c.mu.Unlock()
		if c.onClose != nil {
			c.onClose(c.id, err)
		}
		close(c.done)
	})
}

// Err returns the error the connection was closed with, if any.
func (c *WSConn) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closeErr
}
