package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"studiodesk/internal/cache"
	"studiodesk/internal/models"
	"studiodesk/internal/repository"
	"studiodesk/internal/sse"
	"studiodesk/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type streamEvent struct {
	name     string
	progress models.GenerationProgress
}

func readStream(t *testing.T, resp *http.Response) []streamEvent {
	t.Helper()
	reader := sse.NewReader(resp.Body)
	var out []streamEvent
	for {
		ev, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		var p models.GenerationProgress
		require.NoError(t, ev.Decode(&p))
		out = append(out, streamEvent{name: ev.Name, progress: p})
	}
}

func TestGenerateSheets_StreamsAuthoritativeProgress(t *testing.T) {
	env := newTestEnv(t, envOptions{costCents: 250})
	owner := testutil.CreateUser(t, env.db, "owner@example.com", "owner")
	env.createModel(t, "aurora", owner)
	_, err := repository.NewBillingRepository(env.db).Credit(context.Background(), owner.ID, 1000)
	require.NoError(t, err)

	resp := env.do(t, http.MethodGet, "/api/models/aurora/sheets/generate?title=Weekly", env.token(t, owner), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, sse.ContentType, resp.Header.Get(fiber.HeaderContentType))
	assert.Equal(t, "no-cache", resp.Header.Get(fiber.HeaderCacheControl))

	events := readStream(t, resp)
	require.Len(t, events, len(models.SheetSteps))

	jobID := events[0].progress.JobID
	require.NotEmpty(t, jobID)
	lastIndex := 0
	for i, ev := range events {
		assert.Equal(t, jobID, ev.progress.JobID)
		assert.Greater(t, ev.progress.StepIndex, lastIndex, "step_index must grow")
		lastIndex = ev.progress.StepIndex
		assert.Equal(t, models.SheetSteps[:i+1], ev.progress.Completed)
	}

	final := events[len(events)-1]
	assert.Equal(t, models.EventComplete, final.name)
	assert.Equal(t, 100, final.progress.Percent)
	require.NotNil(t, final.progress.Link)
	assert.Equal(t, "Weekly", final.progress.Link.Title)

	acct, err := repository.NewBillingRepository(env.db).GetAccount(context.Background(), owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(750), acct.BalanceCents)

	// The lock is released and the new link is listed.
	held, err := env.rdb.Exists(context.Background(), cache.GenerationLockKey("aurora")).Result()
	require.NoError(t, err)
	assert.Zero(t, held)

	resp = env.do(t, http.MethodGet, "/api/models/aurora/sheet-links", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	links := decodeBody[[]models.SheetLink](t, resp)
	require.Len(t, links, 1)
	assert.Equal(t, jobID, links[0].JobID)
}

func TestGenerateSheets_FailureEmitsErrorEvent(t *testing.T) {
	env := newTestEnv(t, envOptions{noTemplate: true})
	owner := testutil.CreateUser(t, env.db, "owner@example.com", "owner")
	env.createModel(t, "aurora", owner)

	resp := env.do(t, http.MethodGet, "/api/models/aurora/sheets/generate", env.token(t, owner), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	events := readStream(t, resp)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventError, events[0].name)
	assert.Equal(t, models.StepValidate, events[0].progress.Step)
	assert.Empty(t, events[0].progress.Completed)
	assert.NotEmpty(t, events[0].progress.Error)

	resp = env.do(t, http.MethodGet, "/api/models/aurora/sheet-links", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeBody[[]models.SheetLink](t, resp))
}

func TestGenerateSheets_Rejections(t *testing.T) {
	env := newTestEnv(t, envOptions{costCents: 250})
	owner := testutil.CreateUser(t, env.db, "owner@example.com", "owner")
	stranger := testutil.CreateUser(t, env.db, "s@example.com", "stranger")
	env.createModel(t, "aurora", owner)

	tests := []struct {
		name   string
		path   string
		token  string
		setup  func()
		status int
		code   string
	}{
		{
			name:   "unauthenticated",
			path:   "/api/models/aurora/sheets/generate",
			status: http.StatusUnauthorized,
		},
		{
			name:   "unknown model",
			path:   "/api/models/nobody/sheets/generate",
			token:  env.token(t, owner),
			status: http.StatusNotFound,
			code:   models.CodeNotFound,
		},
		{
			name:   "not the owner",
			path:   "/api/models/aurora/sheets/generate",
			token:  env.token(t, stranger),
			status: http.StatusForbidden,
			code:   models.CodeForbidden,
		},
		{
			name:   "insufficient balance",
			path:   "/api/models/aurora/sheets/generate",
			token:  env.token(t, owner),
			status: http.StatusPaymentRequired,
			code:   models.CodeInsufficientBalance,
		},
		{
			name:  "already running",
			path:  "/api/models/aurora/sheets/generate",
			token: env.token(t, owner),
			setup: func() {
				_, err := repository.NewBillingRepository(env.db).Credit(context.Background(), owner.ID, 1000)
				require.NoError(t, err)
				env.mr.Set(cache.GenerationLockKey("aurora"), "1")
			},
			status: http.StatusConflict,
			code:   models.CodeConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			resp := env.do(t, http.MethodGet, tt.path, tt.token, nil)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.code != "" {
				assert.Equal(t, tt.code, decodeBody[models.ErrorResponse](t, resp).Code)
			}
		})
	}
}

func TestGenerateSheets_AdminMayGenerateForAnyModel(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	owner := testutil.CreateUser(t, env.db, "owner@example.com", "owner")
	admin := testutil.CreateUser(t, env.db, "admin@example.com", "boss")
	env.makeAdmin(t, admin)
	env.createModel(t, "juniper", owner)

	resp := env.do(t, http.MethodGet, "/api/models/juniper/sheets/generate", env.token(t, admin), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	events := readStream(t, resp)
	require.NotEmpty(t, events)
	assert.Equal(t, models.EventComplete, events[len(events)-1].name)
}

func TestGenerateSheets_FeatureFlagOff(t *testing.T) {
	env := newTestEnv(t, envOptions{flags: "sheet_generation=off"})
	owner := testutil.CreateUser(t, env.db, "owner@example.com", "owner")
	env.createModel(t, "aurora", owner)

	resp := env.do(t, http.MethodGet, "/api/models/aurora/sheets/generate", env.token(t, owner), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCheckBalance(t *testing.T) {
	env := newTestEnv(t, envOptions{costCents: 250})
	user := testutil.CreateUser(t, env.db, "b@example.com", "payer")
	tok := env.token(t, user)

	resp := env.do(t, http.MethodPost, "/api/billing/check-balance", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	check := decodeBody[models.BalanceCheck](t, resp)
	assert.False(t, check.Sufficient)
	assert.Equal(t, int64(0), check.BalanceCents)
	assert.Equal(t, int64(250), check.RequiredCents)

	_, err := repository.NewBillingRepository(env.db).Credit(context.Background(), user.ID, 600)
	require.NoError(t, err)

	resp = env.do(t, http.MethodPost, "/api/billing/check-balance", tok, fiber.Map{"count": 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	check = decodeBody[models.BalanceCheck](t, resp)
	assert.True(t, check.Sufficient)
	assert.Equal(t, int64(500), check.RequiredCents)

	resp = env.do(t, http.MethodPost, "/api/billing/check-balance", tok, fiber.Map{"count": 3})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decodeBody[models.BalanceCheck](t, resp).Sufficient)

	resp = env.do(t, http.MethodPost, "/api/billing/check-balance", tok, fiber.Map{"count": 1000})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
