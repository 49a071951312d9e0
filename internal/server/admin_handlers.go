package server

import (
	"studiodesk/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetFeatureFlags returns configured feature flags and evaluated state for current user.
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	if s.featureFlags == nil {
		return c.JSON(fiber.Map{
			"raw":       map[string]string{},
			"evaluated": map[string]bool{},
		})
	}

	return c.JSON(fiber.Map{
		"raw":       s.featureFlags.Raw(),
		"evaluated": s.featureFlags.Snapshot(currentUserID(c)),
	})
}

// ListAdmins handles GET /api/admin/admins
func (s *Server) ListAdmins(c *fiber.Ctx) error {
	admins, err := s.userService.ListAdmins(c.UserContext())
	if err != nil {
		return s.mapServiceError(c, err)
	}
	return c.JSON(admins)
}

// SetUserAdmin handles PUT /api/admin/users/:userId/admin with {"is_admin": bool}.
func (s *Server) SetUserAdmin(c *fiber.Ctx) error {
	targetID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}
	var req struct {
		IsAdmin *bool `json:"is_admin"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	if req.IsAdmin == nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("is_admin is required"))
	}
	if targetID == currentUserID(c) && !*req.IsAdmin {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Admins cannot demote themselves"))
	}

	user, err := s.userService.SetAdmin(c.UserContext(), targetID, *req.IsAdmin)
	if err != nil {
		return s.mapServiceError(c, err)
	}
	return c.JSON(user)
}
