package server

import (
	"context"
	"strings"

	"studiodesk/internal/featureflags"
	"studiodesk/internal/models"
	"studiodesk/internal/seed"
	"studiodesk/internal/service"

	"github.com/gofiber/fiber/v2"
)

// ListPosts handles GET /api/forum/posts
// @Summary List forum posts
// @Description Page through posts; pinned posts lead every sort
// @Tags forum
// @Produce json
// @Param category_id query int false "Category filter"
// @Param model query string false "Creator model filter"
// @Param general_only query bool false "Only posts without a model"
// @Param sort query string false "hot, new or top"
// @Param page query int false "1-based page"
// @Param page_size query int false "Posts per page"
// @Param search query string false "Title/body search"
// @Success 200 {object} models.PostPage
// @Failure 400 {object} models.ErrorResponse
// @Router /forum/posts [get]
func (s *Server) ListPosts(c *fiber.Ctx) error {
	filters, err := parsePostFilters(c)
	if err != nil {
		return nil
	}

	page, err := s.forumService.ListPosts(c.UserContext(), filters, s.optionalUserID(c))
	if err != nil {
		return s.mapServiceError(c, err)
	}
	return c.JSON(page)
}

// GetPost handles GET /api/forum/posts/:id
func (s *Server) GetPost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	post, err := s.forumService.GetPost(c.UserContext(), id, s.optionalUserID(c))
	if err != nil {
		return s.mapServiceError(c, err)
	}
	return c.JSON(post)
}

// CreatePost handles POST /api/forum/posts
// @Summary Create a forum post
// @Tags forum
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{title=string,body=string,category_id=int,model_name=string} true "Post"
// @Success 201 {object} models.Post
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse "USERNAME_REQUIRED"
// @Router /forum/posts [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req struct {
		Title      string `json:"title"`
		Body       string `json:"body"`
		CategoryID *uint  `json:"category_id"`
		ModelName  string `json:"model_name"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	post, err := s.forumService.CreatePost(c.UserContext(), service.CreatePostInput{
		UserID:     currentUserID(c),
		Title:      req.Title,
		Body:       req.Body,
		CategoryID: req.CategoryID,
		ModelName:  req.ModelName,
	})
	if err != nil {
		return s.mapServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// CreateComment handles POST /api/forum/comments
func (s *Server) CreateComment(c *fiber.Ctx) error {
	var req struct {
		PostID   uint   `json:"post_id"`
		ParentID *uint  `json:"parent_id"`
		Body     string `json:"body"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	if req.PostID == 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("post_id is required"))
	}

	comment, err := s.forumService.CreateComment(c.UserContext(), service.CreateCommentInput{
		UserID:   currentUserID(c),
		PostID:   req.PostID,
		ParentID: req.ParentID,
		Body:     req.Body,
	})
	if err != nil {
		return s.mapServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

// Vote handles POST /api/forum/votes
// @Summary Toggle a vote
// @Description Voting the caller's current direction again withdraws the vote
// @Tags forum
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{target_type=string,target_id=int,vote_type=string} true "Vote"
// @Success 200 {object} models.VoteResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /forum/votes [post]
func (s *Server) Vote(c *fiber.Ctx) error {
	var req struct {
		TargetType string `json:"target_type"`
		TargetID   uint   `json:"target_id"`
		VoteType   string `json:"vote_type"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	result, err := s.forumService.Vote(c.UserContext(), service.VoteInput{
		UserID:     currentUserID(c),
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		VoteType:   req.VoteType,
	})
	if err != nil {
		return s.mapServiceError(c, err)
	}
	return c.JSON(result)
}

// GetCategories handles GET /api/forum/categories
func (s *Server) GetCategories(c *fiber.Ctx) error {
	categories, err := s.forumService.Categories(c.UserContext())
	if err != nil {
		return s.mapServiceError(c, err)
	}
	return c.JSON(categories)
}

// GetForumStats handles GET /api/forum/stats
func (s *Server) GetForumStats(c *fiber.Ctx) error {
	stats, err := s.forumService.Stats(c.UserContext())
	if err != nil {
		return s.mapServiceError(c, err)
	}
	return c.JSON(stats)
}

// PinPost handles PATCH /api/forum/posts/:id/pin
func (s *Server) PinPost(c *fiber.Ctx) error {
	return s.setPostFlag(c, "pinned", s.forumService.SetPinned)
}

// LockPost handles PATCH /api/forum/posts/:id/lock
func (s *Server) LockPost(c *fiber.Ctx) error {
	return s.setPostFlag(c, "locked", s.forumService.SetLocked)
}

// setPostFlag reads {"<field>": bool}; an empty body sets the flag.
func (s *Server) setPostFlag(c *fiber.Ctx, field string, apply func(ctx context.Context, id uint, v bool) (*models.Post, error)) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	value := true
	if len(c.Body()) > 0 {
		var req map[string]*bool
		if err := parseBody(c, &req); err != nil {
			return nil
		}
		if v, ok := req[field]; ok && v != nil {
			value = *v
		}
	}

	post, err := apply(c.UserContext(), id, value)
	if err != nil {
		return s.mapServiceError(c, err)
	}
	return c.JSON(post)
}

// DeletePost handles DELETE /api/forum/posts/:id
func (s *Server) DeletePost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.forumService.DeletePost(c.UserContext(), service.DeletePostInput{
		UserID: currentUserID(c),
		PostID: id,
	}); err != nil {
		return s.mapServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// SeedForum handles POST /api/forum/seed?preset=name
func (s *Server) SeedForum(c *fiber.Ctx) error {
	if !s.featureFlags.Enabled(featureflags.ForumSeed, currentUserID(c)) {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("Feature", featureflags.ForumSeed))
	}

	name := c.Query("preset", s.config.ForumSeedPreset)
	if name == "" {
		name = "demo"
	}
	// Only embedded presets are reachable over HTTP.
	if strings.ContainsAny(name, "./\\") {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Unknown preset"))
	}
	preset, err := seed.LoadPreset(name)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError(err.Error()))
	}

	summary, err := seed.NewSeeder(s.db, seed.Options{}).ApplyPreset(c.UserContext(), preset)
	if err != nil {
		return s.mapServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(summary)
}
