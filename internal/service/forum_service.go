package service

import (
	"context"
	"strings"

	"studiodesk/internal/cache"
	"studiodesk/internal/models"
	"studiodesk/internal/notifications"
	"studiodesk/internal/repository"
	"studiodesk/internal/validation"
)

// EventPublisher fans realtime events out to connected clients.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload any)
	PublishUser(ctx context.Context, userID uint, eventType string, payload any)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, any)           {}
func (noopPublisher) PublishUser(context.Context, uint, string, any) {}

// ForumRepos groups the repositories the forum reads and writes.
type ForumRepos struct {
	Users      repository.UserRepository
	Posts      repository.PostRepository
	Comments   repository.CommentRepository
	Votes      repository.VoteRepository
	Categories repository.CategoryRepository
	Stats      repository.StatsRepository
}

type ForumService struct {
	users      repository.UserRepository
	posts      repository.PostRepository
	comments   repository.CommentRepository
	votes      repository.VoteRepository
	categories repository.CategoryRepository
	stats      repository.StatsRepository
	events     EventPublisher
}

type CreatePostInput struct {
	UserID     uint
	Title      string
	Body       string
	CategoryID *uint
	ModelName  string
}

type CreateCommentInput struct {
	UserID   uint
	PostID   uint
	ParentID *uint
	Body     string
}

type VoteInput struct {
	UserID     uint
	TargetType string
	TargetID   uint
	VoteType   string
}

type DeletePostInput struct {
	UserID uint
	PostID uint
}

func NewForumService(repos ForumRepos, events EventPublisher) *ForumService {
	if events == nil {
		events = noopPublisher{}
	}
	return &ForumService{
		users:      repos.Users,
		posts:      repos.Posts,
		comments:   repos.Comments,
		votes:      repos.Votes,
		categories: repos.Categories,
		stats:      repos.Stats,
		events:     events,
	}
}

// ListPosts serves a page of posts. Pages are cached independently of the
// viewer; the viewer's own votes are overlaid after the cache read.
func (s *ForumService) ListPosts(ctx context.Context, filters models.PostFilters, viewerID uint) (*models.PostPage, error) {
	f := filters.Normalize()

	load := func(ctx context.Context) (*models.PostPage, error) { return s.posts.List(ctx, f) }

	var page *models.PostPage
	var err error
	if strings.TrimSpace(f.Search) == "" {
		page, err = cache.Aside(ctx, cache.PostListKey(f), cache.PostListTTL, load)
	} else {
		page, err = load(ctx)
	}
	if err != nil {
		return nil, err
	}

	if viewerID != 0 && len(page.Posts) > 0 {
		ids := make([]uint, len(page.Posts))
		for i, p := range page.Posts {
			ids[i] = p.ID
		}
		if votes, err := s.votes.UserVotes(ctx, viewerID, models.VoteTargetPost, ids); err == nil {
			for i := range page.Posts {
				page.Posts[i].UserVote = votes[page.Posts[i].ID]
			}
		}
	}
	return page, nil
}

// GetPost returns the post with its comments in thread order.
func (s *ForumService) GetPost(ctx context.Context, id, viewerID uint) (*models.Post, error) {
	post, err := cache.Aside(ctx, cache.PostKey(id), cache.PostTTL, func(ctx context.Context) (*models.Post, error) {
		return s.posts.GetByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	if viewerID != 0 {
		if votes, err := s.votes.UserVotes(ctx, viewerID, models.VoteTargetPost, []uint{post.ID}); err == nil {
			post.UserVote = votes[post.ID]
		}
		if len(post.Comments) > 0 {
			ids := make([]uint, len(post.Comments))
			for i, c := range post.Comments {
				ids[i] = c.ID
			}
			if votes, err := s.votes.UserVotes(ctx, viewerID, models.VoteTargetComment, ids); err == nil {
				for i := range post.Comments {
					post.Comments[i].UserVote = votes[post.Comments[i].ID]
				}
			}
		}
	}
	return post, nil
}

// requireUsername loads the acting user and rejects users without a username.
func (s *ForumService) requireUsername(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.HasUsername() {
		return nil, models.NewUsernameRequiredError()
	}
	return user, nil
}

func (s *ForumService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	if err := validation.ValidatePost(in.Title, in.Body); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if _, err := s.requireUsername(ctx, in.UserID); err != nil {
		return nil, err
	}

	if in.CategoryID != nil {
		category, err := s.categories.GetByID(ctx, *in.CategoryID)
		if err != nil {
			return nil, err
		}
		if !category.Active {
			return nil, models.NewValidationError("Category is not accepting posts")
		}
	}

	post := &models.Post{
		Title:      strings.TrimSpace(in.Title),
		Body:       strings.TrimSpace(in.Body),
		UserID:     in.UserID,
		CategoryID: in.CategoryID,
	}
	if name := strings.TrimSpace(in.ModelName); name != "" {
		post.ModelName = &name
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, err
	}
	cache.InvalidatePostLists(ctx)
	cache.Invalidate(ctx, cache.CategoriesKey)

	created, err := s.posts.GetByID(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	s.events.Publish(ctx, notifications.EventPostCreated, created)
	return created, nil
}

func (s *ForumService) CreateComment(ctx context.Context, in CreateCommentInput) (*models.Comment, error) {
	if err := validation.ValidateComment(in.Body); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if _, err := s.requireUsername(ctx, in.UserID); err != nil {
		return nil, err
	}

	post, err := s.posts.GetByID(ctx, in.PostID)
	if err != nil {
		return nil, err
	}
	if post.Locked {
		return nil, models.NewForbiddenError("Post is locked")
	}
	if in.ParentID != nil {
		parent, err := s.comments.GetByID(ctx, *in.ParentID)
		if err != nil {
			return nil, err
		}
		if parent.PostID != in.PostID {
			return nil, models.NewValidationError("Parent comment belongs to another post")
		}
	}

	comment := &models.Comment{
		Body:     strings.TrimSpace(in.Body),
		UserID:   in.UserID,
		PostID:   in.PostID,
		ParentID: in.ParentID,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, err
	}
	cache.InvalidatePost(ctx, in.PostID)

	created, err := s.comments.GetByID(ctx, comment.ID)
	if err != nil {
		return nil, err
	}
	s.events.Publish(ctx, notifications.EventCommentCreated, created)
	return created, nil
}

// Vote toggles the caller's vote: the same direction twice withdraws it.
func (s *ForumService) Vote(ctx context.Context, in VoteInput) (*models.VoteResult, error) {
	value, ok := models.VoteValue(in.VoteType)
	if !ok {
		return nil, models.NewValidationError("vote_type must be upvote or downvote")
	}
	if in.TargetType != models.VoteTargetPost && in.TargetType != models.VoteTargetComment {
		return nil, models.NewValidationError("target_type must be post or comment")
	}
	if _, err := s.requireUsername(ctx, in.UserID); err != nil {
		return nil, err
	}

	postID := in.TargetID
	if in.TargetType == models.VoteTargetComment {
		comment, err := s.comments.GetByID(ctx, in.TargetID)
		if err != nil {
			return nil, err
		}
		postID = comment.PostID
	}

	result, err := s.votes.Toggle(ctx, in.UserID, in.TargetType, in.TargetID, value)
	if err != nil {
		return nil, err
	}
	cache.InvalidatePost(ctx, postID)

	s.events.Publish(ctx, notifications.EventVoteUpdated, map[string]any{
		"target_type": result.TargetType,
		"target_id":   result.TargetID,
		"post_id":     postID,
		"upvotes":     result.Upvotes,
		"downvotes":   result.Downvotes,
	})
	return result, nil
}

func (s *ForumService) Categories(ctx context.Context) ([]models.Category, error) {
	return cache.Aside(ctx, cache.CategoriesKey, cache.CategoriesTTL, func(ctx context.Context) ([]models.Category, error) {
		return s.categories.List(ctx, false)
	})
}

func (s *ForumService) Stats(ctx context.Context) (*models.ForumStats, error) {
	return cache.Aside(ctx, cache.StatsKey, cache.StatsTTL, s.stats.Forum)
}

func (s *ForumService) SetPinned(ctx context.Context, postID uint, pinned bool) (*models.Post, error) {
	if err := s.posts.SetPinned(ctx, postID, pinned); err != nil {
		return nil, err
	}
	return s.afterModeration(ctx, postID)
}

func (s *ForumService) SetLocked(ctx context.Context, postID uint, locked bool) (*models.Post, error) {
	if err := s.posts.SetLocked(ctx, postID, locked); err != nil {
		return nil, err
	}
	return s.afterModeration(ctx, postID)
}

func (s *ForumService) afterModeration(ctx context.Context, postID uint) (*models.Post, error) {
	cache.InvalidatePost(ctx, postID)
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	s.events.Publish(ctx, notifications.EventPostUpdated, map[string]any{
		"id":     post.ID,
		"pinned": post.Pinned,
		"locked": post.Locked,
	})
	return post, nil
}

// DeletePost soft-deletes a post. Only the author or an admin may delete.
func (s *ForumService) DeletePost(ctx context.Context, in DeletePostInput) error {
	post, err := s.posts.GetByID(ctx, in.PostID)
	if err != nil {
		return err
	}
	if post.UserID != in.UserID {
		actor, err := s.users.GetByID(ctx, in.UserID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin {
			return models.NewForbiddenError("You can only delete your own posts")
		}
	}

	if err := s.posts.Delete(ctx, in.PostID); err != nil {
		return err
	}
	cache.InvalidatePost(ctx, in.PostID)
	cache.Invalidate(ctx, cache.CategoriesKey)
	s.events.Publish(ctx, notifications.EventPostDeleted, map[string]any{"id": in.PostID})
	return nil
}
