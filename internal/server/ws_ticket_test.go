package server

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"studiodesk/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueWSTicket(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	user := testutil.CreateUser(t, env.db, "ticket@example.com", "ticketer")

	resp := env.do(t, http.MethodPost, "/api/ws/ticket", env.token(t, user), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[map[string]any](t, resp)
	ticket, _ := body["ticket"].(string)
	require.NotEmpty(t, ticket)
	assert.Equal(t, float64(30), body["expires_in"])

	stored, err := env.rdb.Get(context.Background(), wsTicketKey(ticket)).Result()
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprint(user.ID), stored)
	assert.True(t, env.mr.TTL(wsTicketKey(ticket)) > 0)
}

func TestIssueWSTicket_RequiresAuth(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	resp := env.do(t, http.MethodPost, "/api/ws/ticket", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIssueWSTicket_WithoutRedis(t *testing.T) {
	env := newTestEnv(t, envOptions{noRedis: true})
	user := testutil.CreateUser(t, env.db, "ticket@example.com", "ticketer")

	resp := env.do(t, http.MethodPost, "/api/ws/ticket", env.token(t, user), nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestForumWebsocket_RequiresUpgrade(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	user := testutil.CreateUser(t, env.db, "ws@example.com", "socket")

	resp := env.do(t, http.MethodPost, "/api/ws/ticket", env.token(t, user), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ticket := decodeBody[map[string]any](t, resp)["ticket"].(string)

	// A plain GET passes auth, consumes the ticket and is refused by the upgrader.
	resp = env.do(t, http.MethodGet, "/api/ws/forum?ticket="+ticket, "", nil)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/ws/forum?ticket="+ticket, "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestForumWebsocket_BearerNotAccepted(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	user := testutil.CreateUser(t, env.db, "ws@example.com", "socket")

	resp := env.do(t, http.MethodGet, "/api/ws/forum", env.token(t, user), nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
