package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/youruser/t4n/internal/logging"
)

var log = logging.Get()

const defaultRequestTimeout = 25 * time.Second

// Client talks to the t4n chat API.
type Client struct {
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	requestTimeout time.Duration
}

// NewClient creates a client for baseURL. A nil policy disables transport
// retries. requestTimeout bounds non-streaming calls; zero uses the default.
func NewClient(baseURL, apiKey string, policy *RetryPolicy, requestTimeout time.Duration) *Client {
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	var transport http.RoundTripper = http.DefaultTransport
	if policy != nil {
		transport = NewRetryTransport(transport, *policy)
	}
	return &Client{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		apiKey:         apiKey,
		httpClient:     &http.Client{Transport: transport},
		requestTimeout: requestTimeout,
	}
}

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
}

// StreamMessage posts message to the streaming chat endpoint and returns the
// raw response for the Decoder. The response status is not checked here;
// NewDecoder reports a failed response as a *TransportError. ctx governs the
// whole stream, so cancelling it aborts the body read.
func (c *Client) StreamMessage(ctx context.Context, message, conversationID string) (*http.Response, error) {
	bodyBytes, err := json.Marshal(chatRequest{Message: message, ConversationID: conversationID})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat/stream", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")

	log.Debug("HTTP POST %s/api/chat/stream (conversation: %q, message bytes: %d)", c.baseURL, conversationID, len(message))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error("HTTP request failed: %v", err)
		return nil, err
	}
	log.Debug("HTTP response status: %d", resp.StatusCode)
	return resp, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
}

// postJSON sends a non-streaming request bounded by the request timeout and
// decodes a JSON response into out.
func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	bodyBytes, err := json.Marshal(in)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	c.setHeaders(req)

	log.Debug("HTTP POST %s%s", c.baseURL, path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: request timed out after %dms", ErrRequestFailed, c.requestTimeout.Milliseconds())
		}
		log.Error("HTTP request failed: %v", err)
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{StatusCode: resp.StatusCode, Message: apiErrorMessage(resp, data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

// apiErrorMessage prefers the JSON error/message field, then the raw body,
// then the status text.
func apiErrorMessage(resp *http.Response, data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	if text := strings.TrimSpace(string(data)); text != "" {
		return text
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return fmt.Sprintf("Request failed (%d)", resp.StatusCode)
}
