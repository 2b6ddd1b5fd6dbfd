package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/a-essam23/go-classroom/pkg/config"
	"github.com/a-essam23/go-classroom/pkg/transport"
)

// CredentialSource supplies the bearer token used for the handshake.
type CredentialSource interface {
	Token() string
}

type Dialer interface {
	Dial(ctx context.Context, url string, onMessage transport.MessageHandler, onClose transport.OnCloseHandler) (transport.Conn, error)
}

type Options struct {
	URL               string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
}

// Client owns at most one live transport to the realtime service. Every
// operation is best effort: failures are logged and reported as false, never
// returned as errors or panics.
type Client struct {
	opts     Options
	dialer   Dialer
	creds    CredentialSource
	registry *Registry
	logger   *slog.Logger

	mu     sync.Mutex
	state  State
	userID string
	conn   transport.Conn
	cancel context.CancelFunc
	gen    uint64
}

func New(opts Options, dialer Dialer, creds CredentialSource, logger *slog.Logger) *Client {
	return &Client{
		opts:     opts,
		dialer:   dialer,
		creds:    creds,
		registry: NewRegistry(),
		logger:   logger.With(slog.String("component", "realtime")),
	}
}

// NewFromConfig builds a client with the standard transport dialer.
func NewFromConfig(cfg config.RealtimeConfig, creds CredentialSource, logger *slog.Logger) *Client {
	dialer := transport.NewDialer(cfg.Transports, transport.ConnectionConfig{
		ReadTimeout: cfg.ReadTimeout,
		PollTimeout: cfg.PollTimeout,
	}, cfg.DialTimeout, logger)
	return New(Options{
		URL:               cfg.URL,
		ReconnectAttempts: cfg.ReconnectAttempts,
		ReconnectDelay:    cfg.ReconnectDelay,
	}, dialer, creds, logger)
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the handshake has completed on a live transport.
func (c *Client) IsConnected() bool {
	return c.State() == Authenticated
}

// UserID is the identity the server assigned during the handshake, or "".
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Connect starts connecting in the background. It does nothing when a
// connection is already live or being established, or when no credential
// is available. A leftover transport (failed handshake, closed link) is torn
// down before a new one is dialed.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.state.live() {
		c.mu.Unlock()
		c.logger.Debug("Already connected, skipping connect")
		return
	}
	if c.creds == nil || c.creds.Token() == "" {
		c.mu.Unlock()
		c.logger.Info("No credential, skipping connect")
		return
	}

	staleConn, staleCancel := c.conn, c.cancel
	runCtx, cancel := context.WithCancel(ctx)
	c.gen++
	gen := c.gen
	c.conn = nil
	c.cancel = cancel
	c.state = Connecting
	c.userID = ""
	c.mu.Unlock()

	if staleCancel != nil {
		staleCancel()
	}
	if staleConn != nil {
		c.logger.Debug("Tearing down stale transport", slog.String("connID", staleConn.ID().String()))
		staleConn.Close(transport.ErrClosedByClient)
	}

	c.logger.Info("Connecting", slog.String("url", c.opts.URL))
	go c.run(runCtx, gen)
}

// Disconnect tears down the transport. Calling it again is a no-op.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn, cancel := c.conn, c.cancel
	c.gen++
	c.conn = nil
	c.cancel = nil
	c.state = Disconnected
	c.userID = ""
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close(transport.ErrClosedByClient)
		c.logger.Info("Disconnected by client")
		c.dispatch(EventDisconnect, DisconnectPayload{Reason: "io client disconnect"})
	}
}

func (c *Client) run(ctx context.Context, gen uint64) {
	failures := 0
	for attempt := 0; ; attempt++ {
		if attempt > 0 && !sleepCtx(ctx, c.opts.ReconnectDelay) {
			c.finish(gen)
			return
		}

		token := ""
		if c.creds != nil {
			token = c.creds.Token()
		}
		if token == "" {
			c.logger.Info("Credential gone, stopping connection attempts")
			c.finish(gen)
			return
		}

		closeReason := make(chan error, 1)
		onClose := func(_ uuid.UUID, err error) {
			select {
			case closeReason <- err:
			default:
			}
		}

		conn, err := c.dialer.Dial(ctx, c.opts.URL, c.messageHandler(gen), onClose)
		if err != nil {
			if ctx.Err() != nil {
				c.finish(gen)
				return
			}
			failures++
			c.logger.Warn("Connection attempt failed", slog.Int("attempt", failures), slog.Any("error", err))
			c.dispatch(EventConnectError, ConnectErrorPayload{Message: err.Error()})
			if failures > c.opts.ReconnectAttempts {
				c.logger.Error("Giving up after repeated connection failures", slog.Int("attempts", failures))
				if c.finish(gen) {
					c.dispatch(EventReconnectFailed, nil)
				}
				return
			}
			continue
		}

		if !c.attach(gen, conn) {
			conn.Close(transport.ErrClosedByClient)
			return
		}
		failures = 0
		conn.Run()
		c.logger.Info("Transport open, authenticating", slog.String("connID", conn.ID().String()), slog.String("mode", string(conn.Mode())))
		if !c.send(conn, EmitAuthenticate, AuthenticatePayload{Token: token}) {
			c.logger.Warn("Failed to send authenticate message")
		}
		c.awaitAuth(gen)
		c.dispatch(EventConnect, nil)

		select {
		case <-conn.Done():
		case <-ctx.Done():
			conn.Close(transport.ErrClosedByClient)
			c.finish(gen)
			return
		}
		if ctx.Err() != nil {
			c.finish(gen)
			return
		}

		reason := "transport close"
		select {
		case err := <-closeReason:
			if err != nil {
				reason = err.Error()
			}
		default:
		}
		current, rejected := c.detach(gen, conn)
		if !current {
			return
		}
		c.dispatch(EventDisconnect, DisconnectPayload{Reason: reason})
		if rejected {
			// the same credential would be rejected again
			c.logger.Warn("Transport closed after failed handshake, not reconnecting", slog.String("reason", reason))
			c.finish(gen)
			return
		}
		c.logger.Warn("Transport lost, reconnecting", slog.String("reason", reason))
	}
}

// attach installs conn as the current transport if gen is still current.
// Emit stays refused until the handshake completes.
func (c *Client) attach(gen uint64, conn transport.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.conn = conn
	return true
}

// awaitAuth moves a freshly attached transport to AwaitingAuth once the
// authenticate frame is out. A reply that already arrived is left alone.
func (c *Client) awaitAuth(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen && c.state == Connecting {
		c.state = AwaitingAuth
	}
}

// detach forgets a transport that closed on its own and goes back to
// Connecting. rejected reports that the handshake had failed on it.
func (c *Client) detach(gen uint64, conn transport.Conn) (current, rejected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.conn != conn {
		return false, false
	}
	rejected = c.state == Failed
	c.conn = nil
	c.state = Connecting
	c.userID = ""
	return true, rejected
}

// finish marks the run loop for gen as over. It reports whether gen was current.
func (c *Client) finish(gen uint64) bool {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}
	cancel := c.cancel
	c.conn = nil
	c.cancel = nil
	c.state = Disconnected
	c.userID = ""
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return true
}

func (c *Client) messageHandler(gen uint64) transport.MessageHandler {
	return func(_ context.Context, connID uuid.UUID, raw []byte) {
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn("Failed to unmarshal server message", slog.Any("error", err))
			return
		}

		c.mu.Lock()
		if c.gen != gen || c.conn == nil || c.conn.ID() != connID {
			c.mu.Unlock()
			c.logger.Debug("Dropping frame from stale transport", slog.String("event", msg.Event))
			return
		}
		switch msg.Event {
		case EventAuthenticated:
			c.state = Authenticated
			c.userID = gjson.GetBytes(msg.Payload, "user_id").String()
		case EventAuthError:
			c.state = Failed
			c.userID = ""
		}
		userID := c.userID
		c.mu.Unlock()

		switch msg.Event {
		case EventAuthenticated:
			c.logger.Info("Authenticated", slog.String("userID", userID))
		case EventAuthError:
			c.logger.Error("Authentication failed", slog.String("payload", string(msg.Payload)))
		case EventError:
			c.logger.Error("Server reported error", slog.String("payload", string(msg.Payload)))
		}
		c.dispatch(msg.Event, msg.Payload)
	}
}

func (c *Client) dispatch(event string, payload any) {
	handlers := c.registry.Handlers(event)
	if len(handlers) == 0 {
		return
	}
	raw, err := marshalPayload(payload)
	if err != nil {
		c.logger.Error("Failed to marshal local event payload", slog.String("event", event), slog.Any("error", err))
		return
	}
	for _, fn := range handlers {
		c.invoke(event, fn, raw)
	}
}

func (c *Client) invoke(event string, fn Handler, payload json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Event handler panicked", slog.String("event", event), slog.Any("panic", r))
		}
	}()
	fn(payload)
}

// On registers fn for event, replacing every handler previously registered
// for that name. Subscriptions survive reconnects and Disconnect.
func (c *Client) On(event string, fn Handler) Handle {
	return c.registry.Replace(event, fn)
}

// Off removes the given handles for event, or all handlers for event when none are given.
func (c *Client) Off(event string, handles ...Handle) {
	c.registry.Remove(event, handles...)
}

// OffAll removes every subscription.
func (c *Client) OffAll() {
	c.registry.Clear()
}

// Emit sends an application event. It is dropped, not queued, unless the
// handshake has completed.
func (c *Client) Emit(event string, payload any) bool {
	c.mu.Lock()
	state, conn := c.state, c.conn
	c.mu.Unlock()

	if conn == nil || state != Authenticated {
		c.logger.Warn("Cannot emit event: not connected", slog.String("event", event), slog.String("state", state.String()))
		return false
	}
	return c.send(conn, event, payload)
}

func (c *Client) send(conn transport.Conn, event string, payload any) bool {
	raw, err := marshalPayload(payload)
	if err != nil {
		c.logger.Error("Failed to marshal event payload", slog.String("event", event), slog.Any("error", err))
		return false
	}
	frame, err := json.Marshal(Message{Event: event, Payload: raw})
	if err != nil {
		c.logger.Error("Failed to marshal frame", slog.String("event", event), slog.Any("error", err))
		return false
	}
	return conn.Send(frame)
}

func marshalPayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	default:
		return json.Marshal(p)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
