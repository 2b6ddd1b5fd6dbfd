package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
)

// Dialer opens a Conn using the first transport mode that succeeds.
type Dialer struct {
	Modes       []Mode
	Config      ConnectionConfig
	DialTimeout time.Duration
	HTTPClient  *http.Client
	Header      http.Header
	Logger      *slog.Logger
}

func NewDialer(modes []string, config ConnectionConfig, dialTimeout time.Duration, logger *slog.Logger) *Dialer {
	parsed := make([]Mode, 0, len(modes))
	for _, m := range modes {
		parsed = append(parsed, Mode(strings.ToLower(strings.TrimSpace(m))))
	}
	return &Dialer{
		Modes:       parsed,
		Config:      config,
		DialTimeout: dialTimeout,
		Logger:      logger.With(slog.String("component", "transport_dialer")),
	}
}

// Dial connects to baseURL. The returned Conn has not been Run yet.
func (d *Dialer) Dial(ctx context.Context, baseURL string, onMessage MessageHandler, onClose OnCloseHandler) (Conn, error) {
	modes := d.Modes
	if len(modes) == 0 {
		modes = []Mode{ModeWebSocket, ModePolling}
	}

	var errs []error
	for _, mode := range modes {
		dialCtx, cancel := ctx, context.CancelFunc(func() {})
		if d.DialTimeout > 0 {
			dialCtx, cancel = context.WithTimeout(ctx, d.DialTimeout)
		}
		conn, err := d.dialMode(dialCtx, mode, baseURL, onMessage, onClose)
		cancel()
		if err == nil {
			return conn, nil
		}
		d.Logger.Debug("Transport mode failed", slog.String("mode", string(mode)), slog.Any("error", err))
		errs = append(errs, fmt.Errorf("%s: %w", mode, err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}

func (d *Dialer) dialMode(ctx context.Context, mode Mode, baseURL string, onMessage MessageHandler, onClose OnCloseHandler) (Conn, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch mode {
	case ModeWebSocket:
		wsURL, err := WebSocketURL(baseURL)
		if err != nil {
			return nil, err
		}
		wsConn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
			HTTPClient: d.HTTPClient,
			HTTPHeader: d.Header,
		})
		if err != nil {
			return nil, err
		}
		return NewWSConn(wsConn, d.Config, onMessage, onClose, logger), nil
	case ModePolling:
		pollURL, err := HTTPURL(baseURL)
		if err != nil {
			return nil, err
		}
		return OpenPolling(ctx, d.HTTPClient, pollURL, d.Config, onMessage, onClose, logger)
	default:
		return nil, fmt.Errorf("unknown transport mode '%s'", mode)
	}
}

// WebSocketURL maps an http(s) or ws(s) base URL to the ws(s) endpoint under it.
func WebSocketURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme '%s'", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

// HTTPURL maps a ws(s) or http(s) base URL to its http(s) form without a trailing slash.
func HTTPURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported scheme '%s'", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String(), nil
}
