package marzban

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"resellerhq/warden/pkg/panels"
	"resellerhq/warden/pkg/telemetry/metrics"
)

// Default client settings.
const (
	DefaultTimeout        = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultPageSize       = 200
	DefaultInitialBackoff = 500 * time.Millisecond
)

// Config configures the client.
type Config struct {
	// BaseURL is the panel root, e.g. https://panel.example.com:8000.
	BaseURL string

	// Username and Password are the sudo admin credentials.
	Username string
	Password string

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt for
	// network errors and 5xx responses.
	MaxRetries int

	// PageSize is the page length for user listings.
	PageSize int

	// InitialBackoff is the first retry delay.
	InitialBackoff time.Duration

	// HTTPClient overrides the transport. Its Timeout is ignored in favour of
	// Timeout.
	HTTPClient *http.Client
}

// Client talks to one Marzban panel. It is safe for concurrent use.
type Client struct {
	cfg     Config
	base    *url.URL
	http    *http.Client
	logger  *slog.Logger
	metrics *metrics.Collector

	mu    sync.Mutex
	token string
}

// New creates a client. collector may be nil.
func New(cfg Config, collector *metrics.Collector) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("marzban base url cannot be empty")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse marzban base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}

	return &Client{
		cfg:     cfg,
		base:    base,
		http:    hc,
		logger:  slog.Default().With("component", "marzban"),
		metrics: collector,
	}, nil
}

// Ping authenticates against the panel.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.authenticate(ctx)
	return err
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// authenticate logs in and caches a fresh token.
func (c *Client) authenticate(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("username", c.cfg.Username)
	form.Set("password", c.cfg.Password)

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint("/api/admin/token", nil), strings.NewReader(form.Encode()))
	if err != nil {
		return "", &panels.TransientAPIError{Op: "authenticate", Username: c.cfg.Username, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordMarzbanRequest(http.MethodPost, 0)
		return "", &panels.TransientAPIError{Op: "authenticate", Username: c.cfg.Username, Err: fmt.Errorf("%w: %w", panels.ErrNetwork, err)}
	}
	defer resp.Body.Close()
	c.metrics.RecordMarzbanRequest(http.MethodPost, resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return "", statusError("authenticate", c.cfg.Username, resp)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", &panels.TransientAPIError{Op: "authenticate", Username: c.cfg.Username, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode token: %w", err)}
	}
	if tr.AccessToken == "" {
		return "", &panels.TransientAPIError{Op: "authenticate", Username: c.cfg.Username, StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: empty access token", panels.ErrAuth)}
	}

	c.mu.Lock()
	c.token = tr.AccessToken
	c.mu.Unlock()
	return tr.AccessToken, nil
}

// currentToken returns the cached token, logging in when there is none.
func (c *Client) currentToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	tok := c.token
	c.mu.Unlock()
	if tok != "" {
		return tok, nil
	}
	return c.authenticate(ctx)
}

// invalidate drops tok if it is still the cached token.
func (c *Client) invalidate(tok string) {
	c.mu.Lock()
	if c.token == tok {
		c.token = ""
	}
	c.mu.Unlock()
}

// call performs one logical API call with retries. out may be nil.
func (c *Client) call(ctx context.Context, op, target, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return &panels.TransientAPIError{Op: op, Username: target, Err: fmt.Errorf("encode body: %w", err)}
		}
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.cfg.InitialBackoff
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.cfg.MaxRetries)), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := c.send(ctx, op, target, method, path, query, payload, out)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		c.logger.Debug("marzban request failed, retrying",
			"op", op,
			"target", target,
			"attempt", attempt,
			"error", err,
		)
		return err
	}, b)
	if err != nil && ctx.Err() != nil && !panels.IsTransient(err) {
		return &panels.TransientAPIError{Op: op, Username: target, Err: fmt.Errorf("%w: %w", panels.ErrNetwork, ctx.Err())}
	}
	return err
}

// send performs a single attempt, refreshing the token once on 401.
func (c *Client) send(ctx context.Context, op, target, method, path string, query url.Values, payload []byte, out any) error {
	tok, err := c.currentToken(ctx)
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, method, path, query, payload, tok)
	if err != nil {
		return &panels.TransientAPIError{Op: op, Username: target, Err: fmt.Errorf("%w: %w", panels.ErrNetwork, err)}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		c.invalidate(tok)
		c.logger.Debug("marzban token rejected, re-authenticating", "op", op)

		tok, err = c.authenticate(ctx)
		if err != nil {
			return err
		}
		resp, err = c.do(ctx, method, path, query, payload, tok)
		if err != nil {
			return &panels.TransientAPIError{Op: op, Username: target, Err: fmt.Errorf("%w: %w", panels.ErrNetwork, err)}
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(op, target, resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &panels.TransientAPIError{Op: op, Username: target, StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: decode response: %w", panels.ErrRejected, err)}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload []byte, tok string) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	// The timeout context must outlive the body read, so it is released by
	// the response body's Close.
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	req, err := http.NewRequestWithContext(reqCtx, method, c.endpoint(path, query), body)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		c.metrics.RecordMarzbanRequest(method, 0)
		return nil, err
	}
	c.metrics.RecordMarzbanRequest(method, resp.StatusCode)
	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// statusError converts a non-200 response into a TransientAPIError.
func statusError(op, target string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := strings.TrimSpace(string(snippet))

	var kind error
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		kind = panels.ErrAuth
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		kind = panels.ErrNetwork
	default:
		kind = panels.ErrRejected
	}
	err := kind
	if detail != "" {
		err = fmt.Errorf("%w: %s", kind, detail)
	}
	return &panels.TransientAPIError{Op: op, Username: target, StatusCode: resp.StatusCode, Err: err}
}

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	return errors.Is(err, panels.ErrNetwork)
}
