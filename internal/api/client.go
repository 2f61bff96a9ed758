// Package api is the client for the remote personal-finance REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"finsession/internal/log"
	"finsession/internal/metrics"
)

const (
	DefaultTimeout  = 15 * time.Second
	maxResponseSize = 10 << 20

	HeaderRequestID = "X-Request-ID"
)

// TokenSource yields the bearer token for outgoing requests.
type TokenSource interface {
	Token(ctx context.Context) (string, bool)
}

type Client struct {
	baseURL *url.URL
	http    *http.Client
	tokens  TokenSource
	logger  *log.Logger
	metrics *metrics.Metrics
	newID   func() string
}

type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l.WithComponent(log.ComponentAPI) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New returns a client rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("parse base url %q: must be absolute", baseURL)
	}
	c := &Client{
		baseURL: u,
		http:    newHTTPClient(DefaultTimeout),
		logger:  log.Discard(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          32,
			MaxIdleConnsPerHost:   16,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		},
	}
}

// do sends one request and decodes the unwrapped payload into out. out may
// be nil when the response body is not needed.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	resource := resourceOf(path)
	requestID := c.newID()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", resource, err)
		}
		reader = bytes.NewReader(encoded)
	}

	target := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", resource, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderRequestID, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token, ok := c.tokens.Token(ctx); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.APIRequest(method, resource, 0, time.Since(start))
		c.logger.WarnContext(ctx, "API request failed",
			log.FieldRequestID, requestID,
			log.FieldMethod, method,
			log.FieldPath, path,
			log.FieldError, err)
		msg := "Network error, please try again"
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.Join(ctxErr, err)
			msg = "Request cancelled"
		}
		return &Error{Message: msg, RequestID: requestID, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	elapsed := time.Since(start)
	c.metrics.APIRequest(method, resource, resp.StatusCode, elapsed)
	if err != nil {
		return &Error{StatusCode: resp.StatusCode, Message: "Failed to read server response", RequestID: requestID, Err: err}
	}

	c.logger.DebugContext(ctx, "API request",
		log.FieldRequestID, requestID,
		log.FieldMethod, method,
		log.FieldPath, path,
		log.FieldStatusCode, resp.StatusCode,
		log.FieldDuration, elapsed.Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := errorMessage(raw)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		if resp.StatusCode == http.StatusUnauthorized {
			// No forced logout here; callers decide what a 401 means.
			c.logger.WarnContext(ctx, "API rejected credentials",
				log.FieldRequestID, requestID,
				log.FieldPath, path)
		}
		return &Error{StatusCode: resp.StatusCode, Message: msg, RequestID: requestID}
	}

	if out == nil {
		return nil
	}
	payload, err := unwrap(raw)
	if err != nil {
		return &ParseError{Resource: resource, Err: err}
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &ParseError{Resource: resource, Err: err}
	}
	return nil
}

func resourceOf(path string) string {
	path = strings.Trim(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}
