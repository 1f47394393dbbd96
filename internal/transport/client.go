// Package transport is the HTTP client side of event submission. It posts
// envelopes to a livefeed server and decodes the JSON response envelope.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agentstation/livefeed/internal/server/handlers"
	"github.com/agentstation/livefeed/internal/server/response"
	"github.com/agentstation/livefeed/pkg/errors"
	"github.com/agentstation/livefeed/pkg/events"
)

// DefaultHTTPTimeout is the default timeout for submission requests.
var DefaultHTTPTimeout = 10 * time.Second

// Routes relative to the API prefix.
const (
	EventsPath      = "/events"
	ConnectionsPath = "/connections"
)

// Client submits events to a livefeed server.
type Client struct {
	http  *http.Client
	auth  Authenticator
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithAuth applies auth with token to every request.
func WithAuth(auth Authenticator, token string) Option {
	return func(cl *Client) {
		cl.auth = auth
		cl.token = token
	}
}

// New creates a new transport client.
func New(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{Timeout: DefaultHTTPTimeout},
		auth: &NoAuth{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do performs an HTTP request with authentication and JSON headers applied.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.token != "" {
		c.auth.Apply(req, c.token)
	}

	req.Header.Set("Accept", "application/json")
	if req.Method == http.MethodPost || req.Method == http.MethodPut || req.Method == http.MethodPatch {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.http.Do(req)
}

// Publish submits env to the server rooted at baseURL, which includes the
// API prefix (for example http://localhost:8080/api/v1). A non-empty
// idempotencyKey is sent so retries of the same submission are not
// delivered twice.
func (c *Client) Publish(ctx context.Context, baseURL string, env events.Envelope, idempotencyKey string) (handlers.PublishResult, error) {
	var result handlers.PublishResult

	body, err := json.Marshal(env)
	if err != nil {
		return result, err
	}

	endpoint := strings.TrimSuffix(baseURL, "/") + EventsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return result, errors.NewConnectError(endpoint, 0, err)
	}
	if idempotencyKey != "" {
		req.Header.Set(handlers.IdempotencyHeader, idempotencyKey)
	}

	resp, err := c.Do(req)
	if err != nil {
		return result, errors.NewConnectError(endpoint, 0, err)
	}

	if err := DecodeResponse(resp, &result); err != nil {
		return result, err
	}
	return result, nil
}

// Connections lists the streams registered with a broadcast server.
func (c *Client) Connections(ctx context.Context, baseURL string) (handlers.ConnectionList, error) {
	var list handlers.ConnectionList

	endpoint := strings.TrimSuffix(baseURL, "/") + ConnectionsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return list, errors.NewConnectError(endpoint, 0, err)
	}

	resp, err := c.Do(req)
	if err != nil {
		return list, errors.NewConnectError(endpoint, 0, err)
	}

	if err := DecodeResponse(resp, &list); err != nil {
		return list, err
	}
	return list, nil
}

// APIError is a failure reported by the server in the response envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := fmt.Sprintf("server returned %d", e.StatusCode)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

// DecodeResponse reads the response envelope and decodes its data field
// into target. Non-2xx responses become an *APIError.
func DecodeResponse(resp *http.Response, target any) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewDecodeError("", err)
	}

	var envelope struct {
		Data  json.RawMessage `json:"data"`
		Error *response.Error `json:"error"`
	}
	decodeErr := json.Unmarshal(body, &envelope)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if decodeErr == nil && envelope.Error != nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
			apiErr.Details = envelope.Error.Details
		} else {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return apiErr
	}

	if decodeErr != nil {
		return errors.NewDecodeError(string(body), decodeErr)
	}
	if target == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, target); err != nil {
		return errors.NewDecodeError(string(envelope.Data), err)
	}
	return nil
}
