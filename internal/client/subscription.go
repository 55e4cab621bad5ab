package client

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/farmacia/farmacia-backend/internal/inventory/repository"
	"github.com/farmacia/farmacia-backend/pkg/errors"
	"github.com/gorilla/websocket"
)

// Feed event types. EventReconnected is emitted by the client after the
// connection was restored; events may have been missed, so refetch.
const (
	EventHello       = "hello"
	EventAlert       = "alert"
	EventReconnected = "reconnected"
)

// FeedEvent is one notification of the live alert feed
type FeedEvent struct {
	Type  string                 `json:"type"`
	Event *repository.AlertEvent `json:"event,omitempty"`
}

// Subscription is a live alert feed that reconnects with backoff until it is
// closed, its context ends, or the server refuses the credential.
type Subscription struct {
	events chan FeedEvent
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	err    error
	closed bool
}

// Events delivers feed events in order. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan FeedEvent {
	return s.events
}

// Err returns why the subscription ended, nil while it runs or after Close
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the subscription and waits for its connection to be released
func (s *Subscription) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	<-s.done
}

func (s *Subscription) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.err = err
	}
}

func (s *Subscription) emit(ctx context.Context, ev FeedEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Subscribe opens the live alert feed. The connection is made in the
// background; failures are retried with the client's backoff policy.
func (c *Client) Subscribe(ctx context.Context) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		events: make(chan FeedEvent, 32),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go c.runSubscription(ctx, s)
	return s
}

// stableConnection is how long a feed connection must stay up before the
// reconnect backoff starts over.
const stableConnection = 30 * time.Second

func (c *Client) runSubscription(ctx context.Context, s *Subscription) {
	defer close(s.done)
	defer close(s.events)
	defer s.cancel()

	// one policy for the whole subscription: dial failures and dropped
	// connections both wait for the next interval
	b := backoff.WithContext(c.newBackOff(), ctx)
	b.Reset()

	connected := false
	for {
		conn, err := c.dialFeed(ctx)
		if err == nil {
			if connected {
				c.logger.Info().Msg("alert feed reconnected")
				if !s.emit(ctx, FeedEvent{Type: EventReconnected}) {
					conn.Close()
					s.finish(ctx.Err())
					return
				}
			}
			connected = true

			up := time.Now()
			err = c.readFeed(ctx, conn, s)
			conn.Close()
			if time.Since(up) >= stableConnection {
				b.Reset()
			}
		}

		if ctx.Err() != nil {
			s.finish(ctx.Err())
			return
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) {
			s.finish(err)
			return
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			s.finish(err)
			return
		}
		c.logger.Warn().Err(err).Dur("retry_in", wait).Msg("alert feed unavailable")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.finish(ctx.Err())
			return
		case <-timer.C:
		}
	}
}

// dialFeed makes one connection attempt. A refused credential is returned
// as *APIError and ends the subscription.
func (c *Client) dialFeed(ctx context.Context) (*websocket.Conn, error) {
	feedURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/api/v1/alerts/stream"
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := c.dialer.DialContext(ctx, feedURL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &APIError{
				Status:  resp.StatusCode,
				Code:    "UNAUTHORIZED",
				Message: "alert feed refused the credential",
			}
		}
		return nil, err
	}
	return conn, nil
}

// readFeed forwards frames until the connection fails or ctx ends
func (c *Client) readFeed(ctx context.Context, conn *websocket.Conn, s *Subscription) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		var ev FeedEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return err
		}
		if !s.emit(ctx, ev) {
			return ctx.Err()
		}
	}
}
