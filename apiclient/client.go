package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/readit-web/internal/errors"
	"github.com/rs/zerolog"
)

// Refresher renews the access token. Implemented by the refresh coordinator.
type Refresher interface {
	Refresh(ctx context.Context) (time.Time, error)
}

// Navigator performs the login redirect side effect in browser mode
type Navigator interface {
	NavigateToLogin(ctx context.Context)
}

// NavigatorFunc adapts a function to a Navigator
type NavigatorFunc func(ctx context.Context)

func (f NavigatorFunc) NavigateToLogin(ctx context.Context) { f(ctx) }

// Request describes one backend call
type Request struct {
	Method string
	Path   string
	Body   any
	Query  url.Values
	Header http.Header
}

// Config holds the client settings
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client issues backend calls with the execution context's credentials attached
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *Breaker
	creds      Credentials
	navigator  Navigator
	refresher  Refresher
}

type Option func(*Client)

// WithHTTPClient shares a pooled http.Client (and, in browser mode, its cookie jar)
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBreaker shares a process-wide circuit breaker
func WithBreaker(b *Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithNavigator sets the browser-mode login redirect
func WithNavigator(n Navigator) Option {
	return func(c *Client) { c.navigator = n }
}

// New creates a client for one execution context
func New(cfg Config, creds Credentials, opts ...Option) *Client {
	if creds == nil {
		creds = Ambient{}
	}
	c := &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		creds:   creds,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		c.httpClient = &http.Client{Timeout: timeout}
	}
	if c.breaker == nil {
		c.breaker = NewBreaker(DefaultBreakerConfig())
	}
	return c
}

// SetRefresher binds the refresh coordinator. The coordinator itself calls the
// backend through this client, so it is bound after construction.
func (c *Client) SetRefresher(r Refresher) {
	c.refresher = r
}

// Mode reports the execution context the client was built for
func (c *Client) Mode() Mode {
	return c.creds.Mode()
}

// Credentials returns the credential strategy in use
func (c *Client) Credentials() Credentials {
	return c.creds
}

// Request issues req and decodes a 2xx JSON body into out (if non-nil). A 401 triggers
// one refresh followed by exactly one retry of the identical request; if either fails
// the result is ErrSessionExpired and, in browser mode, the login redirect fires.
func (c *Client) Request(ctx context.Context, req Request, out any) error {
	payload, err := encodeBody(req.Body)
	if err != nil {
		return err
	}

	err = c.send(ctx, req, payload, out)
	if apperrors.StatusCode(err) != http.StatusUnauthorized {
		return err
	}

	if c.refresher == nil {
		apiRetriesTotal.WithLabelValues("no_refresher").Inc()
		return c.expired(ctx, req, err)
	}
	if _, rerr := c.refresher.Refresh(ctx); rerr != nil {
		apiRetriesTotal.WithLabelValues("refresh_failed").Inc()
		return c.expired(ctx, req, rerr)
	}

	if err := c.send(ctx, req, payload, out); err != nil {
		apiRetriesTotal.WithLabelValues("retry_failed").Inc()
		return c.expired(ctx, req, err)
	}
	apiRetriesTotal.WithLabelValues("recovered").Inc()
	return nil
}

// Do issues req once with the same status mapping as Request, without refreshing
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	payload, err := encodeBody(req.Body)
	if err != nil {
		return err
	}
	return c.send(ctx, req, payload, out)
}

func (c *Client) expired(ctx context.Context, req Request, cause error) error {
	zerolog.Ctx(ctx).Warn().Err(cause).Str("method", req.Method).Str("path", req.Path).
		Msg("session expired")
	if c.creds.Mode() == ModeBrowser && c.navigator != nil {
		c.navigator.NavigateToLogin(ctx)
	}
	return apperrors.Session(apperrors.ErrSessionExpired, cause)
}

func (c *Client) send(ctx context.Context, req Request, payload []byte, out any) error {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := c.newHTTPRequest(ctx, method, req, payload)
	if err != nil {
		return err
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, errBackendStatus
		}
		return resp, nil
	})
	if err != nil && !errors.Is(err, errBackendStatus) {
		apiRequestsTotal.WithLabelValues(method, statusClass(0)).Inc()
		return fmt.Errorf("%w: %s %s: %w", apperrors.ErrNetwork, method, req.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.creds.Capture(resp)
	apiRequestsTotal.WithLabelValues(method, statusClass(resp.StatusCode)).Inc()
	zerolog.Ctx(ctx).Debug().Str("method", method).Str("path", req.Path).Int("status", resp.StatusCode).
		Msg("backend call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseStatusError(resp, method, req.Path)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read %s %s: %w", apperrors.ErrNetwork, method, req.Path, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("[apiclient] decode %s %s: %w", method, req.Path, err)
	}
	return nil
}

func (c *Client) newHTTPRequest(ctx context.Context, method string, req Request, payload []byte) (*http.Request, error) {
	target := c.baseURL + "/" + strings.TrimPrefix(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", apperrors.ErrInvalidRequest, method, req.Path, err)
	}

	for k, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	c.creds.Apply(httpReq)
	return httpReq, nil
}

const maxBodyBytes = 1 << 20

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	default:
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: encode body: %w", apperrors.ErrInvalidRequest, err)
		}
		return payload, nil
	}
}

// errorBody covers the error shapes the backend produces
type errorBody struct {
	MessageTitle string `json:"messageTitle"`
	Message      string `json:"message"`
	Msg          string `json:"msg"`
	Error        string `json:"error"`
}

func parseStatusError(resp *http.Response, method, path string) error {
	se := &apperrors.StatusError{Status: resp.StatusCode, Method: method, Path: path}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil || len(raw) == 0 {
		return se
	}
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil {
		se.Title = eb.MessageTitle
		switch {
		case eb.Message != "":
			se.Message = eb.Message
		case eb.Msg != "":
			se.Message = eb.Msg
		default:
			se.Message = eb.Error
		}
		return se
	}
	se.Message = strings.TrimSpace(string(raw))
	return se
}
