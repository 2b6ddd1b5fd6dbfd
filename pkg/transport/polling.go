package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// PollConn emulates a bidirectional link over HTTP long-polling. It is the
// fallback when a WebSocket upgrade is not possible.
type PollConn struct {
	id      uuid.UUID
	sid     string
	baseURL string
	http    *http.Client
	config  ConnectionConfig
	send    chan []byte

	onMessage MessageHandler
	onClose   OnCloseHandler

	done      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	logger *slog.Logger
}

var _ Conn = (*PollConn)(nil)

// OpenPolling opens a polling session at {baseURL}/poll.
func OpenPolling(ctx context.Context, client *http.Client, baseURL string, config ConnectionConfig, onMessage MessageHandler, onClose OnCloseHandler, logger *slog.Logger) (*PollConn, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/poll", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("open polling session: unexpected status %d", resp.StatusCode)
	}
	sid := gjson.GetBytes(body, "sid").String()
	if sid == "" {
		return nil, errors.New("open polling session: response missing 'sid'")
	}

	id := uuid.New()
	connCtx, cancel := context.WithCancel(context.Background())
	return &PollConn{
		id:        id,
		sid:       sid,
		baseURL:   baseURL,
		http:      client,
		config:    config,
		send:      make(chan []byte, config.sendBuffer()),
		onMessage: onMessage,
		onClose:   onClose,
		done:      make(chan struct{}),
		ctx:       connCtx,
		cancel:    cancel,
		logger:    logger.With(slog.String("connID", id.String()), slog.String("mode", string(ModePolling))),
	}, nil
}

func (c *PollConn) ID() uuid.UUID         { return c.id }
func (c *PollConn) Mode() Mode            { return ModePolling }
func (c *PollConn) Done() <-chan struct{} { return c.done }

// SessionID is the server-assigned polling session id.
func (c *PollConn) SessionID() string { return c.sid }

func (c *PollConn) sessionURL() string {
	return c.baseURL + "/poll/" + c.sid
}

func (c *PollConn) Run() {
	go c.pollLoop()
	go c.writeLoop()
	c.logger.Debug("connection established", slog.String("sid", c.sid))
}

func (c *PollConn) pollLoop() {
	var pollErr error
	defer func() {
		c.Close(pollErr)
	}()

	for {
		frames, err := c.poll()
		if err != nil {
			pollErr = err
			return
		}
		for _, frame := range frames {
			if c.onMessage != nil {
				c.onMessage(c.ctx, c.id, frame)
			}
		}
	}
}

func (c *PollConn) poll() ([]json.RawMessage, error) {
	timeout := c.config.PollTimeout
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	// The server holds the request for up to PollTimeout; leave headroom.
	ctx, cancel := context.WithTimeout(c.ctx, timeout+5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.sessionURL(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return nil, nil
	case http.StatusNotFound, http.StatusGone:
		return nil, ErrSessionGone
	default:
		return nil, fmt.Errorf("poll: unexpected status %d", resp.StatusCode)
	}

	var frames []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&frames); err != nil {
		return nil, fmt.Errorf("poll: decode frames: %w", err)
	}
	return frames, nil
}

func (c *PollConn) writeLoop() {
	var writeErr error
	defer func() {
		c.Close(writeErr)
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.post(message); err != nil {
				writeErr = err
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *PollConn) post(message []byte) error {
	req, err := http.NewRequestWithContext(c.ctx, http.MethodPost, c.sessionURL(), bytes.NewReader(message))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent:
		return nil
	case http.StatusNotFound, http.StatusGone:
		return ErrSessionGone
	default:
		return fmt.Errorf("post frame: unexpected status %d", resp.StatusCode)
	}
}

func (c *PollConn) Send(message []byte) bool {
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

func (c *PollConn) Close(err error) {
	c.closeOnce.Do(func() {
		c.logger.Debug("Transport connection closing", slog.Any("reason", err))
		c.cancel()
		if c.onClose != nil {
			c.onClose(c.id, err)
		}
		close(c.done)

		// Best effort and off the caller's path; the server also expires idle sessions.
		go c.deleteSession()
	})
}

func (c *PollConn) deleteSession() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.sessionURL(), nil)
	if err != nil {
		return
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("Polling session delete failed", slog.Any("error", err))
		return
	}
	resp.Body.Close()
}
