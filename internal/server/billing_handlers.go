package server

import (
	"github.com/gofiber/fiber/v2"
)

// CheckBalance handles POST /api/billing/check-balance
// @Summary Check generation balance
// @Description Compares the caller's balance with the cost of count generations
// @Tags billing
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{count=int} false "Number of generations (default 1)"
// @Success 200 {object} models.BalanceCheck
// @Failure 400 {object} models.ErrorResponse
// @Router /billing/check-balance [post]
func (s *Server) CheckBalance(c *fiber.Ctx) error {
	var req struct {
		Count int `json:"count"`
	}
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return nil
		}
	}

	check, err := s.billingService.CheckBalance(c.UserContext(), currentUserID(c), req.Count)
	if err != nil {
		return s.mapServiceError(c, err)
	}
	return c.JSON(check)
}
