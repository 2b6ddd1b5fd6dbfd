package transport

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// MessageHandler is called for every inbound frame, from a single goroutine per connection.
type MessageHandler func(ctx context.Context, connID uuid.UUID, msg []byte)

type OnCloseHandler func(connID uuid.UUID, err error)

type Mode string

const (
	ModeWebSocket Mode = "websocket"
	ModePolling   Mode = "polling"
)

var (
	ErrClosedByClient = errors.New("closed by client")
	ErrSessionGone    = errors.New("polling session no longer exists")
)

type ConnectionConfig struct {
	ReadTimeout time.Duration
	PollTimeout time.Duration
	SendBuffer  int
}

func (c ConnectionConfig) sendBuffer() int {
	if c.SendBuffer <= 0 {
		return 256
	}
	return c.SendBuffer
}

// Conn is one live bidirectional link to the realtime service.
type Conn interface {
	ID() uuid.UUID
	Mode() Mode
	// Run starts the pumps. Handlers may fire from now on.
	Run()
	// Send queues a frame. It reports false once the connection is closing.
	Send(msg []byte) bool
	Close(err error)
	Done() <-chan struct{}
}
