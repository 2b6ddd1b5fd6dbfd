// Package httpclient is the single entry point for REST calls to the
// classroom service. It attaches the bearer credential, classifies failures,
// surfaces them through a Notifier and tears the session down when the
// server says the credential is no longer valid.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/a-essam23/go-classroom/pkg/config"
	"github.com/a-essam23/go-classroom/pkg/notify"
)

// CredentialSource supplies the bearer token for authenticated requests.
type CredentialSource interface {
	Token() string
}

// Invalidator drops the stored credential after a 401 or 422.
type Invalidator interface {
	Invalidate()
}

// Redirector sends the user to another route.
type Redirector interface {
	Redirect(path string)
}

type RedirectFunc func(path string)

func (f RedirectFunc) Redirect(path string) { f(path) }

type Options struct {
	BaseURL       string
	Timeout       time.Duration
	UploadTimeout time.Duration
	RedirectDelay time.Duration
	LoginPath     string
}

// Hooks are the side effects of a failed request. Nil members are skipped.
type Hooks struct {
	Notifier    notify.Notifier
	Invalidator Invalidator
	Redirector  Redirector
}

// File is one multipart file part.
type File struct {
	Field       string
	Name        string
	ContentType string
	Content     io.Reader
}

// RequestOptions tune a single request. A nil *RequestOptions means defaults.
type RequestOptions struct {
	// SkipAuth omits the Authorization header (login, register, send-code).
	SkipAuth bool
	Query    url.Values
	// Form sends a url-encoded body, or extra multipart fields when Files is set.
	Form    url.Values
	Files   []File
	Header  http.Header
	Timeout time.Duration
}

type Client struct {
	opts   Options
	http   *http.Client
	creds  CredentialSource
	hooks  Hooks
	logger *slog.Logger

	afterFunc func(time.Duration, func()) *time.Timer
}

func New(opts Options, creds CredentialSource, hooks Hooks, logger *slog.Logger) *Client {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.LoginPath == "" {
		opts.LoginPath = "/login"
	}
	return &Client{
		opts:      opts,
		http:      &http.Client{},
		creds:     creds,
		hooks:     hooks,
		logger:    logger.With(slog.String("component", "httpclient")),
		afterFunc: time.AfterFunc,
	}
}

func NewFromConfig(cfg *config.Config, creds CredentialSource, hooks Hooks, logger *slog.Logger) *Client {
	return New(Options{
		BaseURL:       cfg.API.BaseURL,
		Timeout:       cfg.API.Timeout,
		UploadTimeout: cfg.API.UploadTimeout,
		RedirectDelay: cfg.API.RedirectDelay,
		LoginPath:     cfg.Routes.Login,
	}, creds, hooks, logger)
}

// WithHTTPClient swaps the underlying client, mostly for tests.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

func (c *Client) BaseURL() string { return c.opts.BaseURL }

func (c *Client) Get(ctx context.Context, endpoint string, opts *RequestOptions) (*Response, error) {
	return c.Send(ctx, http.MethodGet, endpoint, nil, opts)
}

func (c *Client) Post(ctx context.Context, endpoint string, payload any, opts *RequestOptions) (*Response, error) {
	return c.Send(ctx, http.MethodPost, endpoint, payload, opts)
}

func (c *Client) Put(ctx context.Context, endpoint string, payload any, opts *RequestOptions) (*Response, error) {
	return c.Send(ctx, http.MethodPut, endpoint, payload, opts)
}

func (c *Client) Patch(ctx context.Context, endpoint string, payload any, opts *RequestOptions) (*Response, error) {
	return c.Send(ctx, http.MethodPatch, endpoint, payload, opts)
}

func (c *Client) Delete(ctx context.Context, endpoint string, opts *RequestOptions) (*Response, error) {
	return c.Send(ctx, http.MethodDelete, endpoint, nil, opts)
}

// Send performs one request. Any 2xx is success. Every other outcome is an
// *Error whose side effects (notification, session teardown, redirect) have
// already run.
func (c *Client) Send(ctx context.Context, method, endpoint string, payload any, opts *RequestOptions) (*Response, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}

	timeout := c.opts.Timeout
	if len(opts.Files) > 0 && c.opts.UploadTimeout > 0 {
		timeout = c.opts.UploadTimeout
	}
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := c.build(ctx, method, endpoint, payload, opts)
	if err != nil {
		return nil, c.fail(&Error{Kind: KindConfig, Message: fallbackMessage(KindConfig), Err: err}, method, endpoint)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.fail(&Error{Kind: KindNetwork, Message: fallbackMessage(KindNetwork), Err: err}, method, endpoint)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(&Error{Kind: KindNetwork, Message: fallbackMessage(KindNetwork), Err: err}, method, endpoint)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &Response{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
	}

	kind := kindForStatus(resp.StatusCode)
	msg := envelopeMessage(body, kind == KindValidation)
	if msg == "" {
		msg = fallbackMessage(kind)
	}
	return nil, c.fail(&Error{Kind: kind, Status: resp.StatusCode, Message: msg, Body: body}, method, endpoint)
}

func (c *Client) build(ctx context.Context, method, endpoint string, payload any, opts *RequestOptions) (*http.Request, error) {
	target, err := c.resolve(endpoint, opts.Query)
	if err != nil {
		return nil, err
	}

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case len(opts.Files) > 0:
		buf, ct, err := encodeMultipart(opts.Form, opts.Files)
		if err != nil {
			return nil, err
		}
		body, contentType = buf, ct
	case opts.Form != nil:
		body, contentType = strings.NewReader(opts.Form.Encode()), "application/x-www-form-urlencoded"
	case payload != nil:
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding payload: %w", err)
		}
		body, contentType = bytes.NewReader(raw), "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	if !opts.SkipAuth {
		if token := c.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		} else {
			c.logger.Debug("No credential for request", slog.String("endpoint", endpoint))
		}
	}
	return req, nil
}

func (c *Client) resolve(endpoint string, query url.Values) (string, error) {
	if c.opts.BaseURL == "" {
		return "", errors.New("base URL not configured")
	}
	u, err := url.Parse(c.opts.BaseURL + "/" + strings.TrimLeft(endpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) token() string {
	if c.creds == nil {
		return ""
	}
	return c.creds.Token()
}

// fail runs the side effects of a failed request and returns e.
func (c *Client) fail(e *Error, method, endpoint string) error {
	attrs := []any{
		slog.String("method", method),
		slog.String("endpoint", endpoint),
		slog.String("kind", e.Kind.String()),
		slog.String("message", e.Message),
	}
	if e.Status != 0 {
		attrs = append(attrs, slog.Int("status", e.Status))
	}
	if e.Err != nil {
		attrs = append(attrs, slog.Any("error", e.Err))
	}
	if e.Kind == KindConfig {
		c.logger.Error("Request could not be built", attrs...)
	} else {
		c.logger.Warn("Request failed", attrs...)
	}

	if c.hooks.Notifier != nil {
		c.hooks.Notifier.Notify(notify.Error, e.Message)
	}
	if e.Kind.InvalidatesSession() && c.hooks.Invalidator != nil {
		c.logger.Info("Clearing credential after rejected request", slog.Int("status", e.Status))
		c.hooks.Invalidator.Invalidate()
	}
	if e.Kind == KindValidation && c.hooks.Redirector != nil {
		login, r := c.opts.LoginPath, c.hooks.Redirector
		c.afterFunc(c.opts.RedirectDelay, func() { r.Redirect(login) })
	}
	return e
}

func encodeMultipart(fields url.Values, files []File) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, vs := range fields {
		for _, v := range vs {
			if err := w.WriteField(k, v); err != nil {
				return nil, "", err
			}
		}
	}
	for _, f := range files {
		if f.Content == nil {
			return nil, "", fmt.Errorf("file part %q has no content", f.Field)
		}
		part, err := createFilePart(w, f)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, "", fmt.Errorf("reading file part %q: %w", f.Field, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

func createFilePart(w *multipart.Writer, f File) (io.Writer, error) {
	if f.ContentType == "" {
		return w.CreateFormFile(f.Field, f.Name)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, f.Name))
	h.Set("Content-Type", f.ContentType)
	return w.CreatePart(h)
}
