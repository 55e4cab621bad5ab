// Package client is the Go client of the stock service HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/farmacia/farmacia-backend/pkg/errors"
	"github.com/farmacia/farmacia-backend/pkg/logger"
	"github.com/gorilla/websocket"
)

// Client calls the stock service
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	dialer     *websocket.Dialer
	newBackOff func() backoff.BackOff
	logger     *logger.Logger
}

// Option configures a Client
type Option func(*Client)

// WithToken sends token as a bearer credential on every call
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBackOff sets the reconnect policy of live feed subscriptions
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = fn }
}

// New creates a client for the service at baseURL, e.g. http://localhost:8084
func New(baseURL string, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		newBackOff: defaultBackOff,
		logger:     log.WithComponent("stock_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// APIError is an error response of the service
type APIError struct {
	Status  int
	Code    string
	Message string
	Details map[string]string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stock service: %d %s: %s", e.Status, e.Code, e.Message)
}

// IsStateConflict reports whether err is a STATE_CONFLICT response or guard
func IsStateConflict(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == codeStateConflict
	}
	return false
}

// IsNotFound reports whether err is a NOT_FOUND response
func IsNotFound(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == "NOT_FOUND"
	}
	return false
}

const codeStateConflict = "STATE_CONFLICT"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

// do sends body as JSON and decodes the envelope's data into out
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api/v1"+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call stock service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode, Code: "UNKNOWN", Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode >= 300 || !env.Success {
		apiErr := &APIError{Status: resp.StatusCode, Code: "UNKNOWN", Message: http.StatusText(resp.StatusCode)}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		c.logger.Debug().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Str("code", apiErr.Code).
			Msg("stock service returned an error")
		return apiErr
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}
