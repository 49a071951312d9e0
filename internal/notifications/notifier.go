package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strconv"

	"studiodesk/internal/middleware"
	"studiodesk/internal/observability"

	"github.com/redis/go-redis/v9"
)

const (
	BroadcastChannel  = "forum:events:all"
	userChannelPrefix = "forum:events:user:"

	// DroppedNotice tells a slow client that it missed events and should re-fetch.
	DroppedNotice = `{"type":"messages_dropped","payload":{"reason":"buffer_full"}}`
)

// Forum event types.
const (
	EventPostCreated    = "post_created"
	EventPostUpdated    = "post_updated"
	EventPostDeleted    = "post_deleted"
	EventCommentCreated = "comment_created"
	EventVoteUpdated    = "vote_updated"
	EventSheetsReady    = "sheets_ready"
)

// Event is the JSON envelope every realtime message uses.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeEvent builds the wire form of an event.
func EncodeEvent(eventType string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	out, err := json.Marshal(Event{Type: eventType, Payload: raw})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Notifier carries encoded events between instances over Redis pub/sub.
// A Notifier without a client is valid and does nothing.
type Notifier struct {
	rdb *redis.Client
}

func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Enabled reports whether publishes actually reach Redis.
func (n *Notifier) Enabled() bool {
	return n != nil && n.rdb != nil
}

// PublishUser sends payload to the instances holding userID's sockets.
func (n *Notifier) PublishUser(ctx context.Context, userID uint, payload string) error {
	if !n.Enabled() {
		return nil
	}
	return n.rdb.Publish(ctx, UserChannel(userID), payload).Err()
}

// PublishBroadcast sends payload to every connected client.
func (n *Notifier) PublishBroadcast(ctx context.Context, payload string) error {
	if !n.Enabled() {
		return nil
	}
	return n.rdb.Publish(ctx, BroadcastChannel, payload).Err()
}

// Subscribe listens on every user channel and the broadcast channel and
// calls onMessage for each message until ctx is done. It returns once the
// subscription is confirmed, so publishes made afterwards are not lost.
func (n *Notifier) Subscribe(ctx context.Context, onMessage func(channel, payload string)) error {
	if !n.Enabled() {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, userChannelPrefix+"*", BroadcastChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe: %w", err)
	}

	go func() {
		defer func() { _ = sub.Close() }()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				dispatch(msg, onMessage)
			}
		}
	}()
	return nil
}

// dispatch isolates a panicking handler so the subscription survives it.
func dispatch(msg *redis.Message, onMessage func(channel, payload string)) {
	defer func() {
		if r := recover(); r != nil {
			middleware.Logger.Error("relay handler panicked", "channel", msg.Channel, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	observability.WebSocketEventsTotal.WithLabelValues(eventType(msg.Payload)).Inc()
	onMessage(msg.Channel, msg.Payload)
}

func eventType(payload string) string {
	var e struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(payload), &e); err != nil || e.Type == "" {
		return "unknown"
	}
	return e.Type
}

// UserChannel is the pub/sub channel for one user's events.
func UserChannel(userID uint) string {
	return userChannelPrefix + strconv.FormatUint(uint64(userID), 10)
}
