package server

import (
	"fmt"
	"net/http"
	"testing"

	"studiodesk/internal/middleware"
	"studiodesk/internal/models"
	"studiodesk/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	user := testutil.CreateUser(t, env.db, "creator@example.com", "creator")

	tests := []struct {
		name           string
		body           fiber.Map
		expectedStatus int
	}{
		{"valid", fiber.Map{"email": "Creator@Example.com ", "password": "password123"}, http.StatusOK},
		{"wrong password", fiber.Map{"email": "creator@example.com", "password": "nope"}, http.StatusUnauthorized},
		{"unknown email", fiber.Map{"email": "ghost@example.com", "password": "password123"}, http.StatusUnauthorized},
		{"missing fields", fiber.Map{"email": ""}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/auth/login", "", tt.body)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			if tt.expectedStatus != http.StatusOK {
				return
			}
			body := decodeBody[struct {
				Token string      `json:"token"`
				User  models.User `json:"user"`
			}](t, resp)
			assert.Equal(t, user.ID, body.User.ID)

			claims, err := middleware.ParseToken(testSecret, body.Token)
			require.NoError(t, err)
			assert.Equal(t, user.ID, claims.UserID)
			assert.Equal(t, "creator", claims.Username)
		})
	}
}

func TestLogin_MalformedBody(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	req := newRawRequest(http.MethodPost, "/api/auth/login", "{not json")
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUsernameSetup(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	user := testutil.CreateUser(t, env.db, "fresh@example.com", "")
	testutil.CreateUser(t, env.db, "taken@example.com", "taken")
	tok := env.token(t, user)

	resp := env.do(t, http.MethodGet, "/api/user/username", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decodeBody[models.UsernameStatus](t, resp).HasUsername)

	resp = env.do(t, http.MethodPost, "/api/user/username", tok, fiber.Map{"username": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/user/username", tok, fiber.Map{"username": "taken"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/user/username", tok, fiber.Map{"username": "Fresh_Face"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decodeBody[models.UsernameStatus](t, resp)
	assert.True(t, status.HasUsername)
	assert.Equal(t, "fresh_face", status.Username)

	// Same name again is idempotent; a different one is refused.
	resp = env.do(t, http.MethodPost, "/api/user/username", tok, fiber.Map{"username": "fresh_face"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = env.do(t, http.MethodPost, "/api/user/username", tok, fiber.Map{"username": "another"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/user/username", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "fresh_face", decodeBody[models.UsernameStatus](t, resp).Username)
}

func TestAdminEndpoints(t *testing.T) {
	env := newTestEnv(t, envOptions{flags: "forum_seed=on"})
	admin := testutil.CreateUser(t, env.db, "admin@example.com", "boss")
	env.makeAdmin(t, admin)
	member := testutil.CreateUser(t, env.db, "m@example.com", "member")
	adminTok := env.token(t, admin)

	resp := env.do(t, http.MethodGet, "/api/admin/admins", env.token(t, member), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/admin/feature-flags", adminTok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	flags := decodeBody[struct {
		Raw       map[string]string `json:"raw"`
		Evaluated map[string]bool   `json:"evaluated"`
	}](t, resp)
	assert.True(t, flags.Evaluated["forum_seed"])
	assert.True(t, flags.Evaluated["sheet_generation"])

	path := fmt.Sprintf("/api/admin/users/%d/admin", member.ID)
	resp = env.do(t, http.MethodPut, path, adminTok, fiber.Map{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPut, path, adminTok, fiber.Map{"is_admin": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeBody[models.User](t, resp).IsAdmin)

	resp = env.do(t, http.MethodGet, "/api/admin/admins", adminTok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody[[]models.User](t, resp), 2)

	self := fmt.Sprintf("/api/admin/users/%d/admin", admin.ID)
	resp = env.do(t, http.MethodPut, self, adminTok, fiber.Map{"is_admin": false})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPut, "/api/admin/users/abc/admin", adminTok, fiber.Map{"is_admin": true})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid user ID", decodeBody[models.ErrorResponse](t, resp).Error)
}
