// Package notifications fans forum events out to websocket subscribers,
// using Redis pub/sub so every API instance delivers every event.
package notifications

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"studiodesk/internal/middleware"

	"github.com/gofiber/websocket/v2"
)

var (
	ErrServerFull = errors.New("server connection limit reached")
	ErrUserFull   = errors.New("user connection limit reached")
	ErrHubClosed  = errors.New("hub is shutting down")
)

// Hub tracks live subscribers per user on this instance.
type Hub struct {
	maxPerUser int
	maxTotal   int

	mu      sync.RWMutex
	users   map[uint]map[*Subscriber]struct{}
	total   int
	closing bool
	done    chan struct{}
}

type HubOption func(*Hub)

// WithLimits caps sockets per user and per instance.
func WithLimits(perUser, total int) HubOption {
	return func(h *Hub) {
		h.maxPerUser, h.maxTotal = perUser, total
	}
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		maxPerUser: 12,
		maxTotal:   10000,
		users:      make(map[uint]map[*Subscriber]struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Name() string { return "forum" }

// Join registers a socket for userID. conn may be nil when only the
// outbox is exercised.
func (h *Hub) Join(userID uint, conn *websocket.Conn) (*Subscriber, error) {
	var c wsConn
	if conn != nil {
		c = conn
	}
	return h.join(userID, c)
}

func (h *Hub) join(userID uint, conn wsConn) (*Subscriber, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case h.closing:
		return nil, ErrHubClosed
	case h.total >= h.maxTotal:
		return nil, ErrServerFull
	case len(h.users[userID]) >= h.maxPerUser:
		return nil, ErrUserFull
	}

	s := &Subscriber{hub: h, conn: conn, userID: userID, out: make(chan []byte, outboxSize)}
	if h.users[userID] == nil {
		h.users[userID] = make(map[*Subscriber]struct{})
	}
	h.users[userID][s] = struct{}{}
	h.total++
	middleware.ActiveWebSockets.Inc()
	return s, nil
}

// Leave drops s and closes its outbox. Repeated calls are no-ops.
func (h *Hub) Leave(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.users[s.userID]
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.users, s.userID)
	}
	h.total--
	middleware.ActiveWebSockets.Dec()
	s.closeOutbox()
}

// SendUser queues msg for every socket of userID.
func (h *Hub) SendUser(userID uint, msg string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.users[userID] {
		s.deliver([]byte(msg))
	}
}

// SendAll queues msg for every socket on this instance.
func (h *Hub) SendAll(msg string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data := []byte(msg)
	for _, set := range h.users {
		for s := range set {
			s.deliver(data)
		}
	}
}

// Len is the number of live sockets.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// Relay feeds pub/sub traffic from n into the hub until ctx ends.
func (h *Hub) Relay(ctx context.Context, n *Notifier) error {
	return n.Subscribe(ctx, h.Route)
}

// Route delivers one pub/sub message according to its channel.
func (h *Hub) Route(channel, payload string) {
	if channel == BroadcastChannel {
		h.SendAll(payload)
		return
	}
	rest, ok := strings.CutPrefix(channel, userChannelPrefix)
	id, err := strconv.ParseUint(rest, 10, 0)
	if !ok || err != nil {
		middleware.Logger.Warn("dropping message on unknown channel", slog.String("channel", channel))
		return
	}
	h.SendUser(uint(id), payload)
}

// Close says goodbye to every socket and refuses new ones.
func (h *Hub) Close(context.Context) error {
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		return nil
	}
	h.closing = true
	users := h.users
	h.users = make(map[uint]map[*Subscriber]struct{})
	h.total = 0
	h.mu.Unlock()

	// Each write loop sends the close frame once its outbox is closed.
	for _, set := range users {
		for s := range set {
			middleware.ActiveWebSockets.Dec()
			s.closeOutbox()
		}
	}
	close(h.done)
	return nil
}

// Done is closed once Close has finished.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}
