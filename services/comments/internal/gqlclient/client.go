// Package gqlclient is the GraphQL-over-HTTP client the comment viewers use
// to talk to the posts API.
package gqlclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrTransport means no GraphQL payload came back. Callers roll back
	// optimistic state on it.
	ErrTransport = errors.New("transport failure")
	// ErrConflict means the server answered with a GraphQL errors array.
	ErrConflict = errors.New("operation rejected")
)

// Error is returned by every Client call that fails.
type Error struct {
	Op       string
	Status   int
	Messages []string
	Kind     error
	Cause    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("gqlclient: ")
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if len(e.Messages) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Messages, "; "))
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// TokenSource supplies the bearer token for each request. An empty token
// sends the request anonymously.
type TokenSource interface {
	Token() string
}

// Client posts GraphQL operations to a single endpoint.
type Client struct {
	Endpoint   string
	HTTPClient *http.Client
	Tokens     TokenSource
	// Limiter throttles outgoing requests when set.
	Limiter   *rate.Limiter
	UserAgent string
}

type Option func(*Client)

func WithTokens(ts TokenSource) Option {
	return func(c *Client) { c.Tokens = ts }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithRateLimit caps the client at rps requests per second. rps <= 0 disables
// throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.Limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.Limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func New(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = "http://localhost:8080/graphql"
	}
	c := &Client{
		Endpoint:   strings.TrimRight(endpoint, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		UserAgent:  "feed-platform-comments/1.0",
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Operation is a named GraphQL document.
type Operation struct {
	Name     string
	Document string
}

type request struct {
	OperationName string         `json:"operationName"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

// Query executes op with vars and decodes the "data" object into out (which
// may be nil).
func (c *Client) Query(ctx context.Context, op Operation, vars map[string]any, out any) error {
	fail := func(kind error, status int, cause error, msgs ...string) error {
		return &Error{Op: op.Name, Status: status, Messages: msgs, Kind: kind, Cause: cause}
	}

	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return fail(ErrTransport, 0, err)
		}
	}

	body, err := json.Marshal(request{OperationName: op.Name, Query: op.Document, Variables: vars})
	if err != nil {
		return fail(ErrTransport, 0, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fail(ErrTransport, 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.UserAgent)
	if c.Tokens != nil {
		if tok := strings.TrimSpace(c.Tokens.Token()); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fail(ErrTransport, 0, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fail(ErrTransport, resp.StatusCode, err)
	}

	var out0 response
	if err := json.Unmarshal(b, &out0); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fail(ErrTransport, resp.StatusCode, fmt.Errorf("body=%q", string(b[:min(len(b), 200)])))
		}
		return fail(ErrTransport, resp.StatusCode, fmt.Errorf("decode error: %w body=%q", err, string(b[:min(len(b), 200)])))
	}
	if len(out0.Errors) > 0 {
		msgs := make([]string, 0, len(out0.Errors))
		for _, e := range out0.Errors {
			msgs = append(msgs, e.Message)
		}
		return fail(ErrConflict, resp.StatusCode, nil, msgs...)
	}
	if resp.StatusCode != http.StatusOK {
		return fail(ErrTransport, resp.StatusCode, fmt.Errorf("body=%q", string(b[:min(len(b), 200)])))
	}
	if out == nil || len(out0.Data) == 0 || string(out0.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(out0.Data, out); err != nil {
		return fail(ErrTransport, resp.StatusCode, fmt.Errorf("decode data: %w", err))
	}
	return nil
}
