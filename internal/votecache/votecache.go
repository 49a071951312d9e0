// Package votecache tracks the current user's vote per forum item and
// applies votes optimistically: the predicted state is written before the
// request and rolled back if the request fails.
package votecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"sync"

	"studiodesk/internal/models"
)

// Direction is a user's vote on one item.
type Direction int

const (
	None Direction = 0
	Up   Direction = 1
	Down Direction = -1
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	case None:
		return "none"
	}
	return "Direction(" + strconv.Itoa(int(d)) + ")"
}

// directionOf maps a server vote value to a Direction by its sign.
func directionOf(v int) Direction {
	switch {
	case v > 0:
		return Up
	case v < 0:
		return Down
	}
	return None
}

// ParseDirection accepts "up"/"upvote" and "down"/"downvote".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "up", models.VoteTypeUp:
		return Up, nil
	case "down", models.VoteTypeDown:
		return Down, nil
	}
	return None, models.NewValidationError(fmt.Sprintf("invalid vote direction %q", s))
}

func (d Direction) voteType() string {
	if d == Down {
		return models.VoteTypeDown
	}
	return models.VoteTypeUp
}

// ErrVoteInFlight rejects a vote on an item whose previous vote has not
// been answered yet.
var ErrVoteInFlight = errors.New("vote already in flight for this item")

// ItemKey is the conventional cache identifier for a post or comment.
func ItemKey(targetKind string, id uint) string {
	return targetKind + ":" + strconv.FormatUint(uint64(id), 10)
}

// Voter sends a vote to the server.
type Voter interface {
	Vote(ctx context.Context, targetType string, targetID uint, voteType string) (*models.VoteResult, error)
}

// Invalidator is told when server-side scores changed so cached listings
// refetch. Scores are never adjusted locally.
type Invalidator interface {
	PostsChanged()
}

// Cache maps item identifiers to the user's vote. Absent items mean None.
type Cache struct {
	voter       Voter
	invalidator Invalidator
	logger      *slog.Logger

	mu       sync.Mutex
	votes    map[string]Direction
	inFlight map[string]struct{}
}

func New(voter Voter, invalidator Invalidator, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		voter:       voter,
		invalidator: invalidator,
		logger:      logger,
		votes:       make(map[string]Direction),
		inFlight:    make(map[string]struct{}),
	}
}

// Get returns the cached vote for itemID.
func (c *Cache) Get(itemID string) Direction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.votes[itemID]
}

// Snapshot copies the whole cache.
func (c *Cache) Snapshot() map[string]Direction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.votes)
}

// Observe records a vote reported by the server (e.g. a post's user_vote)
// unless a local vote on the item is pending.
func (c *Cache) Observe(itemID string, vote int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, pending := c.inFlight[itemID]; pending {
		return
	}
	c.set(itemID, directionOf(vote))
}

// ObservePost records the user's votes on a fetched post and its comments.
func (c *Cache) ObservePost(post *models.Post) {
	c.Observe(ItemKey(models.VoteTargetPost, post.ID), post.UserVote)
	for _, comment := range post.Comments {
		c.Observe(ItemKey(models.VoteTargetComment, comment.ID), comment.UserVote)
	}
}

func (c *Cache) set(itemID string, d Direction) {
	if d == None {
		delete(c.votes, itemID)
		return
	}
	c.votes[itemID] = d
}

// Vote applies dir to itemID and sends it. Voting the cached direction
// again clears the vote; the request still carries dir and the server
// toggles. It returns the resulting direction.
func (c *Cache) Vote(ctx context.Context, itemID string, dir Direction, targetKind string, numericID uint) (Direction, error) {
	if dir != Up && dir != Down {
		return None, models.NewValidationError("vote direction must be up or down")
	}
	if targetKind != models.VoteTargetPost && targetKind != models.VoteTargetComment {
		return None, models.NewValidationError(fmt.Sprintf("invalid vote target %q", targetKind))
	}

	c.mu.Lock()
	if _, pending := c.inFlight[itemID]; pending {
		c.mu.Unlock()
		return None, ErrVoteInFlight
	}
	prev, hadVote := c.votes[itemID]
	next := dir
	if prev == dir {
		next = None
	}
	c.set(itemID, next)
	c.inFlight[itemID] = struct{}{}
	c.mu.Unlock()

	result, err := c.voter.Vote(ctx, targetKind, numericID, dir.voteType())

	c.mu.Lock()
	delete(c.inFlight, itemID)
	if err != nil {
		if hadVote {
			c.votes[itemID] = prev
		} else {
			delete(c.votes, itemID)
		}
		c.mu.Unlock()
		c.logger.WarnContext(ctx, "vote rolled back",
			slog.String("item", itemID),
			slog.String("direction", dir.String()),
			slog.String("error", err.Error()),
		)
		return prev, fmt.Errorf("vote %s %s: %w", dir, itemID, err)
	}
	// The server's answer wins over the prediction.
	if result != nil && directionOf(result.Vote) != next {
		next = directionOf(result.Vote)
		c.set(itemID, next)
	}
	c.mu.Unlock()

	if c.invalidator != nil {
		c.invalidator.PostsChanged()
	}
	return next, nil
}
