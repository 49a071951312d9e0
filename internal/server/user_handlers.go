package server

import (
	"strconv"
	"time"

	"studiodesk/internal/middleware"
	"studiodesk/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// wsTicketTTL is how long an issued websocket ticket stays redeemable.
const wsTicketTTL = 30 * time.Second

func wsTicketKey(ticket string) string {
	return "ws_ticket:" + ticket
}

// Login handles POST /api/auth/login
// @Summary User login
// @Description Authenticate user and return JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,password=string} true "Login credentials"
// @Success 200 {object} object{token=string,user=models.User}
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	if req.Email == "" || req.Password == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Email and password are required"))
	}

	result, err := s.userService.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return s.mapServiceError(c, err)
	}
	return c.JSON(fiber.Map{
		"token": result.Token,
		"user":  result.User,
	})
}

// GetUsername handles GET /api/user/username
func (s *Server) GetUsername(c *fiber.Ctx) error {
	status, err := s.userService.UsernameStatus(c.UserContext(), currentUserID(c))
	if err != nil {
		return s.mapServiceError(c, err)
	}
	return c.JSON(status)
}

// SetUsername handles POST /api/user/username
// @Summary Choose a username
// @Description One-time username setup; forum writes require it
// @Tags user
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{username=string} true "Username"
// @Success 200 {object} models.UsernameStatus
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /user/username [post]
func (s *Server) SetUsername(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	status, err := s.userService.SetUsername(c.UserContext(), currentUserID(c), req.Username)
	if err != nil {
		return s.mapServiceError(c, err)
	}
	return c.JSON(status)
}

// IssueWSTicket handles POST /api/ws/ticket. The ticket is single-use and
// replaces the bearer token on the websocket upgrade request.
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	if s.redis == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewInternalError(errRedisUnavailable))
	}

	ticket := uuid.NewString()
	userID := strconv.FormatUint(uint64(currentUserID(c)), 10)
	if err := s.redis.Set(c.UserContext(), wsTicketKey(ticket), userID, wsTicketTTL).Err(); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"ticket":     ticket,
		"expires_in": int(wsTicketTTL.Seconds()),
	})
}

// Logout handles POST /api/auth/logout
// @Summary Revoke the current token
// @Tags auth
// @Security BearerAuth
// @Success 204
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/logout [post]
func (s *Server) Logout(c *fiber.Ctx) error {
	claims, err := middleware.ParseToken(s.config.JWTSecret, middleware.BearerToken(c))
	if err != nil {
		return unauthorized(c, "Invalid or expired token")
	}
	if s.redis != nil && claims.JTI != "" {
		if ttl := time.Until(claims.Expires); ttl > 0 {
			if err := s.redis.Set(c.UserContext(), revokedTokenKey(claims.JTI), "1", ttl).Err(); err != nil {
				return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
			}
		}
	}
	return c.SendStatus(fiber.StatusNoContent)
}
