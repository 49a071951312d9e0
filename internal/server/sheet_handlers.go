package server

import (
	"bufio"
	"context"
	"log/slog"
	"time"

	"studiodesk/internal/featureflags"
	"studiodesk/internal/middleware"
	"studiodesk/internal/models"
	"studiodesk/internal/service"
	"studiodesk/internal/sse"

	"github.com/gofiber/fiber/v2"
)

// generationTimeout caps one generation stream end to end.
const generationTimeout = 3 * time.Minute

// GetSheetLinks handles GET /api/models/:name/sheet-links
func (s *Server) GetSheetLinks(c *fiber.Ctx) error {
	links, err := s.sheetService.ListLinks(c.UserContext(), c.Params("name"))
	if err != nil {
		return s.mapServiceError(c, err)
	}
	return c.JSON(links)
}

// GenerateSheets handles GET /api/models/:name/sheets/generate
// @Summary Generate a model spreadsheet
// @Description Streams progress, complete and error events as text/event-stream.
// @Description Every event carries the authoritative completed steps and a monotonic step_index.
// @Tags sheets
// @Produce text/event-stream
// @Security BearerAuth
// @Param name path string true "Creator model name"
// @Param title query string false "Sheet title"
// @Success 200 {object} models.GenerationProgress
// @Failure 402 {object} models.ErrorResponse "INSUFFICIENT_BALANCE"
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse "generation already running"
// @Router /models/{name}/sheets/generate [get]
func (s *Server) GenerateSheets(c *fiber.Ctx) error {
	userID := currentUserID(c)
	if !s.featureFlags.Enabled(featureflags.SheetGeneration, userID) {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("Feature", featureflags.SheetGeneration))
	}

	// Permission, balance and lock failures are answered as plain JSON
	// before the stream opens.
	job, err := s.sheetService.Prepare(c.UserContext(), service.GenerateInput{
		UserID:    userID,
		ModelName: c.Params("name"),
		Title:     c.Query("title"),
	})
	if err != nil {
		return s.mapServiceError(c, err)
	}

	c.Set(fiber.HeaderContentType, sse.ContentType)
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	// The fiber.Ctx is recycled once the handler returns; the stream writer
	// only captures plain values.
	parent := context.WithoutCancel(c.UserContext())
	shutdown := s.shutdownCtx

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		middleware.ActiveEventStreams.Inc()
		defer middleware.ActiveEventStreams.Dec()

		ctx, cancel := context.WithTimeout(parent, generationTimeout)
		defer cancel()
		if shutdown != nil {
			stop := context.AfterFunc(shutdown, cancel)
			defer stop()
		}

		stream := sse.NewWriter(w)
		emit := func(event string, progress models.GenerationProgress) error {
			if err := stream.Send(event, progress); err != nil {
				cancel()
				return err
			}
			return nil
		}

		link, err := s.sheetService.Run(ctx, job, emit)
		if err != nil {
			middleware.Logger.InfoContext(ctx, "sheet generation stream ended",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
			return
		}
		middleware.Logger.InfoContext(ctx, "sheet generation completed",
			slog.String("job_id", job.ID),
			slog.String("spreadsheet_id", link.SpreadsheetID),
		)
	})
	return nil
}
