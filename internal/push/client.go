// Package push provides an HTTP client for an Expo-style push gateway.
//
// The gateway accepts one message per request and acknowledges it with
// {"data": {"status": "ok", "id": "..."}}. Any other shape is a rejection.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// DefaultGatewayURL is the public Expo push endpoint.
const DefaultGatewayURL = "https://exp.host/--/api/v2/push/send"

const (
	PriorityHigh   = "high"
	PriorityNormal = "normal"
)

// ErrRejected is returned when the gateway answers without status "ok".
var ErrRejected = errors.New("push rejected by gateway")

// Data is the structured payload delivered alongside the alert.
type Data struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
	Count  int    `json:"count"`
}

// Message is the JSON body posted to the gateway.
type Message struct {
	To       string `json:"to"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Data     Data   `json:"data"`
	Sound    string `json:"sound"`
	Priority string `json:"priority"`
}

// Ticket is the gateway's acknowledgement of an accepted message.
type Ticket struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type gatewayResponse struct {
	Data struct {
		Status  string `json:"status"`
		ID      string `json:"id"`
		Message string `json:"message"`
		Details struct {
			Error string `json:"error"`
		} `json:"details"`
	} `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Options configure a Client. Zero values take defaults.
type Options struct {
	GatewayURL  string
	AccessToken string
	Timeout     time.Duration
	// RatePerSecond bounds outgoing requests; 0 disables limiting.
	RatePerSecond float64
	HTTPClient    *http.Client
}

// Client sends messages to the push gateway.
type Client struct {
	httpClient  *http.Client
	gatewayURL  string
	accessToken string
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// NewClient creates a gateway client.
func NewClient(opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.GatewayURL == "" {
		opts.GatewayURL = DefaultGatewayURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	c := &Client{
		httpClient:  hc,
		gatewayURL:  opts.GatewayURL,
		accessToken: opts.AccessToken,
		logger:      logger,
	}
	if opts.RatePerSecond > 0 {
		burst := max(int(opts.RatePerSecond), 1)
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return c
}

// Send posts a single message. It returns ErrRejected (wrapped with the
// gateway's reason) when the gateway does not report status "ok".
func (c *Client) Send(ctx context.Context, msg Message) (Ticket, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Ticket{}, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return Ticket{}, fmt.Errorf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL, bytes.NewReader(payload))
	if err != nil {
		return Ticket{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Ticket{}, fmt.Errorf("push request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Ticket{}, fmt.Errorf("read response body: %w", err)
	}

	var gr gatewayResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return Ticket{}, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, truncate(body, 200))
	}
	if gr.Data.Status != "ok" {
		return Ticket{}, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, reason(gr, body))
	}

	c.logger.Debug("push accepted", "ticket", gr.Data.ID, "type", msg.Data.Type, "user_id", msg.Data.UserID)
	return Ticket{ID: gr.Data.ID, Status: gr.Data.Status}, nil
}

func reason(gr gatewayResponse, body []byte) string {
	switch {
	case gr.Data.Details.Error != "":
		return gr.Data.Details.Error + ": " + gr.Data.Message
	case gr.Data.Message != "":
		return gr.Data.Message
	case len(gr.Errors) > 0:
		return gr.Errors[0].Code + ": " + gr.Errors[0].Message
	default:
		return truncate(body, 200)
	}
}

// truncate returns a truncated string representation for error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
