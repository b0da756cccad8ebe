package relay

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
)

const (
	webhookPath = "/webhooks/rest/webhook"
	versionPath = "/version"

	defaultTimeout = 10 * time.Second
)

// Client relays user messages to the Rasa REST webhook and normalizes
// the responses. It is safe for use from a single UI goroutine; each
// request carries its own context.
type Client struct {
	baseURL string
	sender  string
	timeout time.Duration
	client  *http.Client
}

// New creates a relay client for the Rasa server at baseURL. Each client
// gets a fresh sender id so the backend tracks a distinct conversation.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		sender:  uuid.New().String(),
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// Timeout returns the configured per-request timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// request is the payload posted to the Rasa REST webhook.
type request struct {
	Sender   string         `json:"sender"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SendMessage posts the user's text and conversation context to the
// backend and returns the normalized reply. On failure the error
// classifies as timeout/unreachable via FallbackReply.
func (c *Client) SendMessage(
	ctx context.Context,
	message string,
	convContext map[string]any,
) (*Reply, error) {
	body, err := c.SendRaw(ctx, message, convContext)
	if err != nil {
		return nil, err
	}

	reply, err := normalize(body, convContext)
	if err != nil {
		return nil, fmt.Errorf("normalizing backend response: %w", err)
	}
	return reply, nil
}

// SendRaw posts the message and returns the backend's response body
// verbatim. The gateway uses this for the passthrough endpoint.
func (c *Client) SendRaw(
	ctx context.Context,
	message string,
	convContext map[string]any,
) ([]byte, error) {
	payload := request{
		Sender:   c.sender,
		Message:  message,
		Metadata: convContext,
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+webhookPath, bytes.NewReader(reqBody),
	)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling conversational backend: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(
			"backend error (%d): %s", resp.StatusCode, string(respBody),
		)
	}

	return respBody, nil
}

// Health describes the outcome of a backend health check.
type Health struct {
	Available bool           `json:"available"`
	Version   map[string]any `json:"version,omitempty"`
	Reason    string         `json:"reason,omitempty"`
}

// CheckHealth probes the backend's /version endpoint with a short timeout.
func (c *Client) CheckHealth(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, c.baseURL+versionPath, nil,
	)
	if err != nil {
		return Health{Reason: err.Error()}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Health{Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Health{
			Reason: fmt.Sprintf("API responded with status %d", resp.StatusCode),
		}
	}

	var version map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&version); err != nil {
		return Health{Reason: fmt.Sprintf("decoding version: %v", err)}
	}

	return Health{Available: true, Version: version}
}

// Failure classes for unreachable-backend errors.
const (
	FailureTimeout    = "timeout"
	FailureConnection = "connection"
	FailureOther      = "error"
)

// ClassifyFailure maps a transport error to one of the failure classes.
func ClassifyFailure(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return FailureTimeout
		}
		var opErr *net.OpError
		if errors.As(urlErr.Err, &opErr) {
			return FailureConnection
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return FailureConnection
	}

	return FailureOther
}

// FallbackReply builds the locally generated reply shown when the
// backend is unreachable. Each failure mode surfaces exactly once; there
// are no retries.
func FallbackReply(err error, convContext map[string]any) *Reply {
	var text string
	switch ClassifyFailure(err) {
	case FailureTimeout:
		text = "I'm sorry, I couldn't process your request in time. " +
			"Please try again later."
	case FailureConnection:
		text = "I'm having trouble connecting to my backend services. " +
			"Please ensure the Rasa server is running."
	default:
		text = "I'm sorry, I encountered an error processing your request. " +
			"Please try again later."
	}

	return &Reply{
		Messages: []Segment{{Text: text}},
		Context:  cloneContext(convContext),
	}
}
