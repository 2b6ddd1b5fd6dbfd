package realtime_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/a-essam23/go-classroom/pkg/logging"
	"github.com/a-essam23/go-classroom/pkg/realtime"
	"github.com/a-essam23/go-classroom/pkg/transport"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

// fakeConn is an in-memory transport.Conn whose inbound side is driven by the test.
type fakeConn struct {
	id        uuid.UUID
	onMessage transport.MessageHandler
	onClose   transport.OnCloseHandler

	mu     sync.Mutex
	sent   []realtime.Message
	closed bool
	done   chan struct{}
	once   sync.Once
}

func (f *fakeConn) ID() uuid.UUID         { return f.id }
func (f *fakeConn) Mode() transport.Mode  { return transport.ModeWebSocket }
func (f *fakeConn) Run()                  {}
func (f *fakeConn) Done() <-chan struct{} { return f.done }

func (f *fakeConn) Send(msg []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	var m realtime.Message
	if err := json.Unmarshal(msg, &m); err != nil {
		return false
	}
	f.sent = append(f.sent, m)
	return true
}

func (f *fakeConn) Close(err error) {
	f.once.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		if f.onClose != nil {
			f.onClose(f.id, err)
		}
		close(f.done)
	})
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) frames() []realtime.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]realtime.Message, len(f.sent))
	copy(out, f.sent)
	return out
}

// inject delivers a server frame as the transport's read pump would.
func (f *fakeConn) inject(t *testing.T, event string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	frame, err := json.Marshal(realtime.Message{Event: event, Payload: raw})
	require.NoError(t, err)
	f.onMessage(context.Background(), f.id, frame)
}

type fakeDialer struct {
	mu       sync.Mutex
	conns    []*fakeConn
	failures int // number of dials that fail before one succeeds
	always   bool
}

func (d *fakeDialer) Dial(_ context.Context, _ string, onMessage transport.MessageHandler, onClose transport.OnCloseHandler) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.always || d.failures > 0 {
		if d.failures > 0 {
			d.failures--
		}
		d.conns = append(d.conns, nil)
		return nil, errors.New("dial refused")
	}
	c := &fakeConn{id: uuid.New(), onMessage: onMessage, onClose: onClose, done: make(chan struct{})}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func newTestClient(dialer *fakeDialer, token string, attempts int) *realtime.Client {
	return realtime.New(realtime.Options{
		URL:               "http://realtime.test",
		ReconnectAttempts: attempts,
		ReconnectDelay:    time.Millisecond,
	}, dialer, staticToken(token), logging.Discard())
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 2*time.Millisecond, msg)
}

// connectAndAuth drives a client through the handshake and returns its transport.
func connectAndAuth(t *testing.T, c *realtime.Client, d *fakeDialer, userID any) *fakeConn {
	t.Helper()
	c.Connect(context.Background())
	waitFor(t, func() bool { return c.State() == realtime.AwaitingAuth }, "awaiting auth")
	conn := d.last()
	conn.inject(t, realtime.EventAuthenticated, map[string]any{"user_id": userID})
	require.True(t, c.IsConnected())
	return conn
}
