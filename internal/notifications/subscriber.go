package notifications

import (
	"log/slog"
	"sync"
	"time"

	"studiodesk/internal/middleware"
	"studiodesk/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
	pingEvery    = idleTimeout * 9 / 10

	// The forum socket is server-to-client; inbound frames are pongs or junk.
	inboundLimit = 1024
	outboxSize   = 256
)

// wsConn is the part of *websocket.Conn a subscriber needs.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Subscriber is one live forum event socket.
type Subscriber struct {
	hub    *Hub
	conn   wsConn // nil for hub-only tests
	userID uint
	out    chan []byte
	once   sync.Once
}

func (s *Subscriber) UserID() uint { return s.userID }

func (s *Subscriber) closeOutbox() {
	s.once.Do(func() { close(s.out) })
}

// Serve pumps queued events to the socket and blocks until the peer goes
// away. The subscriber leaves its hub on return.
func (s *Subscriber) Serve() {
	go s.writeLoop()
	defer func() {
		s.hub.Leave(s)
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(inboundLimit)
	_ = s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				middleware.Logger.Debug("forum socket closed",
					slog.Uint64("user_id", uint64(s.userID)), slog.String("error", err.Error()))
			}
			return
		}
	}
}

func (s *Subscriber) writeLoop() {
	ping := time.NewTicker(pingEvery)
	defer ping.Stop()

	for {
		select {
		case msg, open := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !open {
				bye := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
				_ = s.conn.WriteMessage(websocket.CloseMessage, bye)
				_ = s.conn.Close()
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = s.conn.Close()
				return
			}
		case <-ping.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = s.conn.Close()
				return
			}
		}
	}
}

// deliver queues msg without blocking. On a full outbox the oldest queued
// event and msg are both lost; a messages_dropped notice takes the freed
// slot so the client knows to refetch.
func (s *Subscriber) deliver(msg []byte) {
	defer func() {
		// Send on a closed outbox: the subscriber left mid-broadcast.
		if recover() != nil {
			observability.WebSocketBackpressureDrops.WithLabelValues(s.hub.Name(), "closed").Inc()
		}
	}()

	select {
	case s.out <- msg:
		return
	default:
	}
	observability.WebSocketBackpressureDrops.WithLabelValues(s.hub.Name(), "full").Inc()
	select {
	case <-s.out:
	default:
	}
	select {
	case s.out <- []byte(DroppedNotice):
	default:
	}
}
