package notifications

import (
	"context"

	"studiodesk/internal/middleware"
)

// Publisher fans forum events out to websocket clients. With Redis wired the
// event goes through pub/sub so every instance delivers it; without Redis it
// is handed straight to the local hub.
type Publisher struct {
	hub      *Hub
	notifier *Notifier
}

func NewPublisher(hub *Hub, notifier *Notifier) *Publisher {
	return &Publisher{hub: hub, notifier: notifier}
}

// Publish broadcasts an event to every connected client.
func (p *Publisher) Publish(ctx context.Context, eventType string, payload any) {
	p.publish(ctx, 0, eventType, payload)
}

// PublishUser delivers an event to one user's connections.
func (p *Publisher) PublishUser(ctx context.Context, userID uint, eventType string, payload any) {
	p.publish(ctx, userID, eventType, payload)
}

// publish sends to userID, or to everyone when userID is 0. Failures are
// logged: a lost realtime event never fails the write that caused it.
func (p *Publisher) publish(ctx context.Context, userID uint, eventType string, payload any) {
	msg, err := EncodeEvent(eventType, payload)
	if err != nil {
		middleware.Logger.ErrorContext(ctx, "encode event", "event", eventType, "error", err)
		return
	}

	if p.notifier.Enabled() {
		if userID == 0 {
			err = p.notifier.PublishBroadcast(ctx, msg)
		} else {
			err = p.notifier.PublishUser(ctx, userID, msg)
		}
		if err != nil {
			middleware.Logger.WarnContext(ctx, "publish event", "event", eventType, "to_user", userID, "error", err)
		}
		return
	}

	switch {
	case p.hub == nil:
	case userID == 0:
		p.hub.SendAll(msg)
	default:
		p.hub.SendUser(userID, msg)
	}
}
