package service

import (
	"context"
	"sync"
	"testing"

	"studiodesk/internal/cache"
	"studiodesk/internal/models"
	"studiodesk/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordedEvent struct {
	UserID uint
	Type   string
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, _ any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{Type: eventType})
}

func (p *recordingPublisher) PublishUser(_ context.Context, userID uint, eventType string, _ any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{UserID: userID, Type: eventType})
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// useMiniredis points the package cache at a fresh miniredis for one test.
func useMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache.Use(rdb)
	t.Cleanup(func() {
		cache.Use(nil)
		_ = rdb.Close()
	})
	return mr
}

func forumRepos(db *gorm.DB) ForumRepos {
	return ForumRepos{
		Users:      repository.NewUserRepository(db),
		Posts:      repository.NewPostRepository(db),
		Comments:   repository.NewCommentRepository(db),
		Votes:      repository.NewVoteRepository(db),
		Categories: repository.NewCategoryRepository(db),
		Stats:      repository.NewStatsRepository(db),
	}
}

func assertCode(t *testing.T, code string, err error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, models.ErrorCode(err), err.Error())
}
