package server

import (
	"errors"
	"strings"
	"unicode"

	"studiodesk/internal/middleware"
	"studiodesk/internal/models"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper.  Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

var errRedisUnavailable = errors.New("redis unavailable")

// mapServiceError writes err as a JSON error response with the status its
// AppError code implies. Anything else is logged and becomes a 500.
func (s *Server) mapServiceError(c *fiber.Ctx, err error) error {
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		appErr = models.NewInternalError(err)
	}
	status := appErr.Status()
	if status >= fiber.StatusInternalServerError {
		middleware.Logger.ErrorContext(c.UserContext(), "request failed",
			"method", c.Method(), "path", c.Path(), "error", err)
	}
	return models.RespondWithError(c, status, appErr)
}

// currentUserID returns the authenticated user set by AuthRequired.
func currentUserID(c *fiber.Ctx) uint {
	id, _ := c.Locals("userID").(uint)
	return id
}

// parseBody decodes the JSON body. On failure it writes a 400 and returns
// errResponseWritten.
func parseBody(c *fiber.Ctx, dest any) error {
	if err := c.BodyParser(dest); err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
		return errResponseWritten
	}
	return nil
}

// parseID reads a positive integer route parameter. On failure it writes
// "Invalid <param>" as a 400 and returns errResponseWritten, so handlers
// just return nil.
func (s *Server) parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid "+humanizeParam(param)))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// humanizeParam turns a camelCase "...Id" param into words:
// "id" -> "ID", "parentCommentId" -> "parent comment ID".
func humanizeParam(param string) string {
	stem, ok := strings.CutSuffix(param, "Id")
	if param == "id" {
		stem, ok = "", true
	}
	if !ok {
		return param
	}
	var b strings.Builder
	for _, r := range stem {
		if unicode.IsUpper(r) && b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	if b.Len() > 0 {
		b.WriteByte(' ')
	}
	return b.String() + "ID"
}

// parsePostFilters reads the listing query string. Invalid values fall back
// to defaults through PostFilters.Normalize.
func parsePostFilters(c *fiber.Ctx) (models.PostFilters, error) {
	f := models.PostFilters{
		ModelName:   strings.ToLower(strings.TrimSpace(c.Query("model"))),
		GeneralOnly: c.QueryBool("general_only", false),
		Sort:        c.Query("sort"),
		Page:        c.QueryInt("page", 1),
		PageSize:    c.QueryInt("page_size", models.DefaultPageSize),
		Search:      strings.TrimSpace(c.Query("search")),
	}
	if raw := c.Query("category_id"); raw != "" {
		id := c.QueryInt("category_id", 0)
		if id <= 0 {
			_ = models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid category ID"))
			return f, errResponseWritten
		}
		cid := uint(id)
		f.CategoryID = &cid
	}
	if f.Sort != "" && f.Sort != models.SortHot && f.Sort != models.SortNew && f.Sort != models.SortTop {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("sort must be one of hot, new, top"))
		return f, errResponseWritten
	}
	return f.Normalize(), nil
}
