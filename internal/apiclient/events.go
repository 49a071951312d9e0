package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"studiodesk/internal/notifications"

	"github.com/gorilla/websocket"
)

// IssueTicket requests a single-use websocket ticket.
func (c *Client) IssueTicket(ctx context.Context) (string, error) {
	var result struct {
		Ticket    string `json:"ticket"`
		ExpiresIn int    `json:"expires_in"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/ws/ticket", nil, nil, &result); err != nil {
		return "", err
	}
	return result.Ticket, nil
}

// SubscribeForumEvents connects to the forum event socket and calls handle
// for each event until ctx is cancelled or the connection drops. It returns
// ctx.Err() after a cancellation.
func (c *Client) SubscribeForumEvents(ctx context.Context, handle func(notifications.Event)) error {
	ticket, err := c.IssueTicket(ctx)
	if err != nil {
		return fmt.Errorf("issue websocket ticket: %w", err)
	}

	target, err := c.websocketURL("/api/ws/forum", ticket)
	if err != nil {
		return err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	if err != nil {
		if resp != nil {
			return decodeError(resp)
		}
		return fmt.Errorf("dial forum events: %w", err)
	}
	defer func() { _ = conn.Close() }()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read forum event: %w", err)
		}

		var ev notifications.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.logger().WarnContext(ctx, "skipping malformed forum event", slog.String("error", err.Error()))
			continue
		}
		handle(ev)
	}
}

func (c *Client) websocketURL(path, ticket string) (string, error) {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.RawQuery = url.Values{"ticket": {ticket}}.Encode()
	return u.String(), nil
}
