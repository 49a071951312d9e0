package server

import (
	"encoding/json"
	"log/slog"

	"studiodesk/internal/middleware"
	"studiodesk/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// ForumWebsocketHandler streams forum events (post_created, comment_created,
// vote_updated, sheets_ready) to the connected user. The ticket middleware in
// front of it stores the user in locals.
func (s *Server) ForumWebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		uid, _ := conn.Locals("userID").(uint)
		if uid == 0 {
			_ = conn.Close()
			return
		}

		sub, err := s.hub.Join(uid, conn)
		if err != nil {
			middleware.Logger.Warn("forum socket rejected",
				slog.Uint64("user_id", uint64(uid)), slog.String("error", err.Error()))
			msg, _ := json.Marshal(models.ErrorResponse{Error: err.Error(), Code: models.CodeRateLimited})
			_ = conn.WriteMessage(websocket.TextMessage, msg)
			_ = conn.Close()
			return
		}
		sub.Serve()
	})
}
