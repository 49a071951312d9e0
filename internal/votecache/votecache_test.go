package votecache

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"studiodesk/internal/apiclient"
	"studiodesk/internal/forumquery"
	"studiodesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type voteCall struct {
	TargetType string
	TargetID   uint
	VoteType   string
}

// toggleServer mimics the server's toggle rules for a single user.
type toggleServer struct {
	mu      sync.Mutex
	calls   []voteCall
	state   map[string]int
	fail    error
	gate    chan struct{}
	entered chan struct{}
}

func newToggleServer() *toggleServer {
	return &toggleServer{state: make(map[string]int)}
}

func (s *toggleServer) Vote(ctx context.Context, targetType string, targetID uint, voteType string) (*models.VoteResult, error) {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.gate != nil {
		<-s.gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, voteCall{targetType, targetID, voteType})
	if s.fail != nil {
		return nil, s.fail
	}
	value, _ := models.VoteValue(voteType)
	key := ItemKey(targetType, targetID)
	if s.state[key] == value {
		value = 0
	}
	s.state[key] = value
	return &models.VoteResult{TargetType: targetType, TargetID: targetID, Vote: value}, nil
}

type countingInvalidator struct{ n atomic.Int32 }

func (c *countingInvalidator) PostsChanged() { c.n.Add(1) }

func TestVoteToggle(t *testing.T) {
	server := newToggleServer()
	inv := &countingInvalidator{}
	cache := New(server, inv, nil)
	ctx := context.Background()
	item := ItemKey(models.VoteTargetPost, 12)

	got, err := cache.Vote(ctx, item, Up, models.VoteTargetPost, 12)
	require.NoError(t, err)
	assert.Equal(t, Up, got)
	assert.Equal(t, Up, cache.Get(item))

	got, err = cache.Vote(ctx, item, Up, models.VoteTargetPost, 12)
	require.NoError(t, err)
	assert.Equal(t, None, got)
	assert.Equal(t, None, cache.Get(item))
	assert.Empty(t, cache.Snapshot(), "cleared votes leave no entry")

	// Both requests carry the same direction; the server toggles.
	assert.Equal(t, []voteCall{
		{models.VoteTargetPost, 12, models.VoteTypeUp},
		{models.VoteTargetPost, 12, models.VoteTypeUp},
	}, server.calls)
	assert.Equal(t, int32(2), inv.n.Load())
}

func TestVoteSwitchDirection(t *testing.T) {
	cache := New(newToggleServer(), nil, nil)
	ctx := context.Background()
	item := ItemKey(models.VoteTargetComment, 3)

	_, err := cache.Vote(ctx, item, Up, models.VoteTargetComment, 3)
	require.NoError(t, err)
	got, err := cache.Vote(ctx, item, Down, models.VoteTargetComment, 3)
	require.NoError(t, err)
	assert.Equal(t, Down, got)
}

func TestVoteFailureRestoresSnapshot(t *testing.T) {
	server := newToggleServer()
	inv := &countingInvalidator{}
	cache := New(server, inv, nil)
	ctx := context.Background()

	cache.Observe("post:1", 1)
	cache.Observe("comment:2", -1)
	before := cache.Snapshot()

	server.fail = &apiclient.APIError{Status: http.StatusInternalServerError}
	for _, tc := range []struct {
		item string
		kind string
		id   uint
		dir  Direction
	}{
		{"post:1", models.VoteTargetPost, 1, Up},       // would clear
		{"comment:2", models.VoteTargetComment, 2, Up}, // would switch
		{"post:9", models.VoteTargetPost, 9, Down},     // absent before
	} {
		prev, err := cache.Vote(ctx, tc.item, tc.dir, tc.kind, tc.id)
		require.Error(t, err)
		assert.Equal(t, before[tc.item], prev)
		assert.Equal(t, before, cache.Snapshot())
	}
	_, present := cache.Snapshot()["post:9"]
	assert.False(t, present)
	assert.Zero(t, inv.n.Load(), "failed votes invalidate nothing")

	_, err := cache.Vote(ctx, "post:1", Up, models.VoteTargetPost, 1)
	assert.Equal(t, http.StatusInternalServerError, apiclient.StatusOf(err), "api error stays inspectable")
}

func TestVoteIsOptimistic(t *testing.T) {
	server := newToggleServer()
	server.gate = make(chan struct{})
	server.entered = make(chan struct{})
	cache := New(server, nil, nil)
	item := ItemKey(models.VoteTargetPost, 5)

	done := make(chan error, 1)
	go func() {
		_, err := cache.Vote(context.Background(), item, Down, models.VoteTargetPost, 5)
		done <- err
	}()

	<-server.entered
	assert.Equal(t, Down, cache.Get(item), "prediction applied before the response")

	_, err := cache.Vote(context.Background(), item, Up, models.VoteTargetPost, 5)
	assert.ErrorIs(t, err, ErrVoteInFlight)
	assert.Equal(t, Down, cache.Get(item), "rejected vote leaves the cache alone")

	cache.Observe(item, 0)
	assert.Equal(t, Down, cache.Get(item), "server snapshots do not clobber a pending vote")

	close(server.gate)
	require.NoError(t, <-done)
	assert.Len(t, server.calls, 1)
}

func TestServerAnswerWins(t *testing.T) {
	server := newToggleServer()
	// Another session already upvoted; the cache does not know.
	server.state["post:4"] = 1
	cache := New(server, nil, nil)

	got, err := cache.Vote(context.Background(), "post:4", Up, models.VoteTargetPost, 4)
	require.NoError(t, err)
	assert.Equal(t, None, got)
	assert.Equal(t, None, cache.Get("post:4"))
}

func TestVoteValidation(t *testing.T) {
	server := newToggleServer()
	cache := New(server, nil, nil)
	ctx := context.Background()

	_, err := cache.Vote(ctx, "post:1", None, models.VoteTargetPost, 1)
	assert.Equal(t, models.CodeValidation, models.ErrorCode(err))
	_, err = cache.Vote(ctx, "user:1", Up, "user", 1)
	assert.Equal(t, models.CodeValidation, models.ErrorCode(err))
	assert.Empty(t, server.calls)

	d, err := ParseDirection("downvote")
	require.NoError(t, err)
	assert.Equal(t, Down, d)
	_, err = ParseDirection("sideways")
	assert.Error(t, err)
}

func TestObservePost(t *testing.T) {
	cache := New(newToggleServer(), nil, nil)
	cache.ObservePost(&models.Post{
		ID: 1, UserVote: 1,
		Comments: []models.Comment{{ID: 7, UserVote: -1}, {ID: 8}},
	})
	assert.Equal(t, map[string]Direction{"post:1": Up, "comment:7": Down}, cache.Snapshot())
}

func TestObserveClampsServerValues(t *testing.T) {
	cache := New(newToggleServer(), nil, nil)
	cache.Observe("post:1", 2)
	cache.Observe("post:2", -5)
	cache.Observe("post:3", 0)
	assert.Equal(t, map[string]Direction{"post:1": Up, "post:2": Down}, cache.Snapshot())
}

func TestSuccessfulVoteRefetchesListings(t *testing.T) {
	var listCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/forum/posts", func(w http.ResponseWriter, r *http.Request) {
		listCalls.Add(1)
		_ = json.NewEncoder(w).Encode(models.PostPage{Posts: []models.Post{{ID: 1, Upvotes: int(listCalls.Load())}}})
	})
	mux.HandleFunc("POST /api/forum/votes", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(models.VoteResult{TargetType: "post", TargetID: 1, Vote: 1, Upvotes: 2})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := apiclient.New(srv.URL)
	layer := forumquery.New(client, forumquery.NewCache(), nil)
	cache := New(client, layer, nil)
	ctx := context.Background()

	first, err := layer.GetPosts(ctx, models.PostFilters{})
	require.NoError(t, err)
	_, err = layer.GetPosts(ctx, models.PostFilters{Sort: models.SortTop})
	require.NoError(t, err)
	_, err = layer.GetPosts(ctx, models.PostFilters{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), listCalls.Load())

	_, err = cache.Vote(ctx, "post:1", Up, models.VoteTargetPost, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Posts[0].Upvotes, "cached scores are not edited locally")

	again, err := layer.GetPosts(ctx, models.PostFilters{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), listCalls.Load())
	assert.Equal(t, 3, again.Posts[0].Upvotes)
}
