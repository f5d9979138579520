// Package aibot is the client for the downstream conversational service. The
// contract is a single request/response POST; any failure to obtain a usable
// reply surfaces as ErrUnavailable.
package aibot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrUnavailable is wrapped by every client failure: unreachable service,
// error status, or malformed response.
var ErrUnavailable = fmt.Errorf("ai service unavailable")

// Context is optional metadata forwarded with a message.
type Context struct {
	UserID    string   `json:"user_id,omitempty"`
	RiskFlags []string `json:"risk_flags,omitempty"`
}

type request struct {
	Message string   `json:"message"`
	Context *Context `json:"context,omitempty"`
}

type response struct {
	Reply string `json:"reply"`
	Error string `json:"error"`
}

type Client struct {
	url  string
	http *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{url: url, http: &http.Client{Timeout: timeout}}
}

// Reply sends the message and returns the bot's reply text.
func (c *Client) Reply(ctx context.Context, message string, meta *Context) (string, error) {
	body, err := json.Marshal(request{Message: message, Context: meta})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: invalid JSON response", ErrUnavailable)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if out.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrUnavailable, out.Error)
		}
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	reply := strings.TrimSpace(out.Reply)
	if reply == "" {
		return "", fmt.Errorf("%w: response missing reply", ErrUnavailable)
	}
	return reply, nil
}
