// Package monitor consumes the monitoring service's websocket stream and
// feeds health-check alerts into a handler.
package monitor

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/relayops/relaybot/internal/alert"
)

// reconnectInterval is the fixed wait between connection attempts after a
// stream failure.
const reconnectInterval = 6 * time.Second

// Handler receives each decoded alert. Handlers run fire-and-forget in
// their own goroutine, so a slow delivery never stalls frame reading.
type Handler func(ctx context.Context, a alert.Alert)

// subscribeRequest asks the stream to start publishing a channel.
type subscribeRequest struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

// envelope is one stream frame. Fields the bot does not use decode into
// RawMessage and are dropped; a frame missing fields is not an error.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Client maintains the subscription to the healthCheck channel,
// reconnecting with a constant backoff whenever the stream breaks.
type Client struct {
	endpoint string
	apiKey   string
	handler  Handler
}

func New(endpoint, apiKey string, handler Handler) *Client {
	return &Client{endpoint: endpoint, apiKey: apiKey, handler: handler}
}

// Run connects and consumes the stream until ctx is cancelled. Every
// failure tears the connection down and retries after the fixed interval;
// Run only returns on context cancellation.
func (c *Client) Run(ctx context.Context) error {
	connect := func() error {
		if err := c.consume(ctx); err != nil {
			log.Printf("monitor: stream error: %v, reconnecting in %s", err, reconnectInterval)
			return err
		}
		return nil
	}
	policy := backoff.WithContext(backoff.NewConstantBackOff(reconnectInterval), ctx)
	return backoff.Retry(connect, policy)
}

// consume dials, subscribes and reads frames until the connection or the
// context dies.
func (c *Client) consume(ctx context.Context) error {
	endpoint, err := c.dialURL()
	if err != nil {
		return backoff.Permanent(err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Printf("monitor: subscribed to healthCheck events at %s", c.endpoint)

	if err := conn.WriteJSON(subscribeRequest{Action: "subscribe", Channel: "healthCheck"}); err != nil {
		return err
	}

	// Close the socket when ctx ends so the blocking read below unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var frame envelope
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		if frame.Type != "healthCheck" || len(frame.Data) == 0 {
			continue
		}

		var a alert.Alert
		if err := json.Unmarshal(frame.Data, &a); err != nil {
			log.Printf("monitor: skipping undecodable healthCheck payload: %v", err)
			continue
		}
		if a.MemberID == "" {
			continue
		}
		go c.handler(ctx, a)
	}
}

// dialURL appends the API key to the configured endpoint.
func (c *Client) dialURL() (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("apiKey", c.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
