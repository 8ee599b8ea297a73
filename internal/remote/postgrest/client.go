// Package postgrest implements remote.Store over a PostgREST (Supabase)
// HTTP API.
//
// Tables: products, stock_movements, sales, sale_items, settings. Sales are
// recorded through the create_sale RPC so the sale, its line items and the
// stock decrements commit in one database transaction.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/stockpro/internal/remote"
)

// Client talks to a PostgREST endpoint.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	token      string
	owner      string
	httpClient *http.Client
}

var (
	_ remote.Store  = (*Client)(nil)
	_ remote.Pinger = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithAccessToken sets the user's bearer token. Without it the API key is
// sent as the bearer.
func WithAccessToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithOwner sets the user id written to user_id on inserted rows.
func WithOwner(owner string) Option {
	return func(c *Client) { c.owner = owner }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// New creates a client for the project at baseURL (for example
// https://xyz.supabase.co).
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse remote url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("parse remote url: %q is not absolute", baseURL)
	}
	c := &Client{
		baseURL:    u,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// apiError is the PostgREST error body.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// request performs one call. body is JSON-encoded when non-nil, out is
// decoded from a 2xx response when non-nil.
func (c *Client) request(ctx context.Context, method, path string, query url.Values, headers map[string]string, body, out any) error {
	u := *c.baseURL
	u.Path += path
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return remote.Wrap(remote.ClassValidation, "", fmt.Errorf("encode request: %w", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return remote.Wrap(remote.ClassValidation, "", err)
	}
	req.Header.Set("apikey", c.apiKey)
	bearer := c.token
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return remote.Wrap(remote.ClassTransient, "", fmt.Errorf("read response: %w", err))
	}
	slog.Debug("postgrest call", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode >= 300 {
		return classifyResponse(resp.StatusCode, data)
	}
	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return remote.Wrap(remote.ClassTransient, "", fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}

// Ping checks that the REST endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.request(ctx, http.MethodHead, "/rest/v1/", nil, nil, nil, nil)
}

func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return remote.Wrap(remote.ClassTransient, "timeout", err)
	}
	if errors.Is(err, context.Canceled) {
		return remote.Wrap(remote.ClassTransient, "canceled", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return remote.Wrap(remote.ClassTransient, "timeout", err)
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return remote.Wrap(remote.ClassOffline, "", err)
	}
	return remote.Wrap(remote.ClassTransient, "", err)
}

var (
	constraintCodes = map[string]bool{"23505": true, "23502": true, "23514": true, "23503": true, "22P02": true}
	schemaCodes     = map[string]bool{"42703": true, "42P01": true, "42883": true, "PGRST204": true, "PGRST202": true, "PGRST200": true}
	authCodes       = map[string]bool{"PGRST301": true, "PGRST302": true, "42501": true}
)

// classifyResponse maps an error response to a remote.Error. The database
// code wins over the HTTP status when both are present.
func classifyResponse(status int, body []byte) error {
	var ae apiError
	_ = json.Unmarshal(body, &ae)
	msg := ae.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	code := ae.Code
	var class remote.Class
	switch {
	case constraintCodes[code]:
		class = remote.ClassConstraint
	case schemaCodes[code]:
		class = remote.ClassSchema
	case authCodes[code]:
		class = remote.ClassAuth
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		class = remote.ClassAuth
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		class = remote.ClassTransient
	case status == http.StatusConflict:
		class = remote.ClassConstraint
	case status >= 400:
		class = remote.ClassValidation
	default:
		class = remote.ClassTransient
	}
	if code == "" {
		code = fmt.Sprint(status)
	}
	return &remote.Error{Class: class, Code: code, Message: msg}
}
