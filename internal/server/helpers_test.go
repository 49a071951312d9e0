package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"studiodesk/internal/models"
	"studiodesk/internal/repository"
	"studiodesk/internal/service"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupMockDB creates a GORM *gorm.DB backed by sqlmock for unit tests.
func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

// --- humanizeParam (pure function, no HTTP) ---

func TestHumanizeParam(t *testing.T) {
	tests := []struct {
		param    string
		expected string
	}{
		{"id", "ID"},
		{"userId", "user ID"},
		{"postId", "post ID"},
		{"parentCommentId", "parent comment ID"},
		{"something", "something"},
	}
	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			assert.Equal(t, tt.expected, humanizeParam(tt.param))
		})
	}
}

// --- parseID ---

func TestParseID(t *testing.T) {
	s := &Server{}
	app := fiber.New()
	app.Get("/posts/:postId", func(c *fiber.Ctx) error {
		id, err := s.parseID(c, "postId")
		if err != nil {
			return nil
		}
		return c.JSON(fiber.Map{"id": id})
	})

	tests := []struct {
		path    string
		status  int
		message string
	}{
		{"/posts/17", http.StatusOK, ""},
		{"/posts/abc", http.StatusBadRequest, "Invalid post ID"},
		{"/posts/0", http.StatusBadRequest, "Invalid post ID"},
		{"/posts/-3", http.StatusBadRequest, "Invalid post ID"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.status, resp.StatusCode)

			if tt.status == http.StatusOK {
				var body map[string]float64
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, float64(17), body["id"])
				return
			}
			var body models.ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.message, body.Error)
			assert.Equal(t, models.CodeValidation, body.Code)
		})
	}
}

// --- mapServiceError ---

func TestMapServiceError(t *testing.T) {
	s := &Server{}
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", models.NewValidationError("bad"), http.StatusBadRequest, models.CodeValidation},
		{"unauthorized", models.NewUnauthorizedError("who"), http.StatusUnauthorized, models.CodeUnauthorized},
		{"balance", models.NewInsufficientBalanceError(10, 250), http.StatusPaymentRequired, models.CodeInsufficientBalance},
		{"forbidden", models.NewForbiddenError("no"), http.StatusForbidden, models.CodeForbidden},
		{"username", models.NewUsernameRequiredError(), http.StatusForbidden, models.CodeUsernameRequired},
		{"not found", models.NewNotFoundError("Post", 4), http.StatusNotFound, models.CodeNotFound},
		{"conflict", models.NewConflictError("dup"), http.StatusConflict, models.CodeConflict},
		{"wrapped", errors.Join(errors.New("ctx"), models.NewConflictError("dup")), http.StatusConflict, models.CodeConflict},
		{"unavailable", models.NewUnavailableError("no redis", errors.New("down")), http.StatusServiceUnavailable, models.CodeUnavailable},
		{"plain", errors.New("boom"), http.StatusInternalServerError, models.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error { return s.mapServiceError(c, tt.err) })

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.status, resp.StatusCode)

			var body models.ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.code, body.Code)
		})
	}
}

// --- parsePostFilters ---

func TestParsePostFilters(t *testing.T) {
	app := fiber.New()
	app.Get("/posts", func(c *fiber.Ctx) error {
		f, err := parsePostFilters(c)
		if err != nil {
			return nil
		}
		return c.JSON(f)
	})

	t.Run("defaults", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/posts", nil))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var f models.PostFilters
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&f))
		want := models.PostFilters{}.Normalize()
		assert.Equal(t, want.Sort, f.Sort)
		assert.Equal(t, 1, f.Page)
		assert.Equal(t, models.DefaultPageSize, f.PageSize)
		assert.Nil(t, f.CategoryID)
	})

	t.Run("explicit", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet,
			"/posts?category_id=3&model=%20Aurora%20&sort=top&page=2&page_size=10&search=%20lights%20", nil))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var f models.PostFilters
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&f))
		require.NotNil(t, f.CategoryID)
		assert.Equal(t, uint(3), *f.CategoryID)
		assert.Equal(t, "aurora", f.ModelName)
		assert.Equal(t, models.SortTop, f.Sort)
		assert.Equal(t, 2, f.Page)
		assert.Equal(t, 10, f.PageSize)
		assert.Equal(t, "lights", f.Search)
	})

	for _, bad := range []string{"/posts?category_id=0", "/posts?category_id=x", "/posts?sort=old"} {
		t.Run(bad, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, bad, nil))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

// --- AdminRequired ---

func adminUserRows(isAdmin bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "is_admin"}).AddRow(1, "a@example.com", isAdmin)
}

func newAdminCheckApp(t *testing.T, gormDB *gorm.DB) *fiber.App {
	t.Helper()
	s := &Server{userService: service.NewUserService(repository.NewUserRepository(gormDB), "secret")}

	app := fiber.New()
	app.Get("/admin", func(c *fiber.Ctx) error {
		c.Locals("userID", uint(1))
		return c.Next()
	}, s.AdminRequired(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestAdminRequired_AllowsAdmin(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users"`)).
		WithArgs(uint(1), 1).
		WillReturnRows(adminUserRows(true))

	resp, err := newAdminCheckApp(t, gormDB).Test(httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdminRequired_RejectsNonAdmin(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users"`)).
		WithArgs(uint(1), 1).
		WillReturnRows(adminUserRows(false))

	resp, err := newAdminCheckApp(t, gormDB).Test(httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdminRequired_UnknownUser(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users"`)).
		WithArgs(uint(1), 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	resp, err := newAdminCheckApp(t, gormDB).Test(httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}
