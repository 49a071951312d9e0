// Package apiclient is a typed Go client for the studiodesk HTTP API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"studiodesk/internal/models"
)

// APIError is returned for every non-2xx response. Code carries the
// server's error code (models.Code*) when the body was an error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, msg)
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// StatusOf returns the HTTP status of an APIError, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Client talks to one API server. It is safe for concurrent use.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger

	mu    sync.RWMutex
	token string
}

// New creates a client for baseURL (e.g. http://localhost:8375).
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     slog.Default(),
	}
}

// SetToken sets the bearer token used on every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		bodyReader = bytes.NewReader(raw)
	}

	target := c.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do sends a JSON request and decodes a 2xx response into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger().DebugContext(ctx, "api request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode}

	var envelope models.ErrorResponse
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != "" {
		apiErr.Code = envelope.Code
		apiErr.Message = envelope.Error
		apiErr.Details = envelope.Details
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

// Login exchanges credentials for a token and keeps it on the client.
func (c *Client) Login(ctx context.Context, email, password string) (*models.User, error) {
	var result struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "/api/auth/login", nil,
		map[string]string{"email": email, "password": password}, &result)
	if err != nil {
		return nil, err
	}
	c.SetToken(result.Token)
	return &result.User, nil
}

// ListPosts fetches one page of posts.
func (c *Client) ListPosts(ctx context.Context, filters models.PostFilters) (*models.PostPage, error) {
	var page models.PostPage
	if err := c.do(ctx, http.MethodGet, "/api/forum/posts", filters.Values(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetPost fetches a post with its comments.
func (c *Client) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := c.do(ctx, http.MethodGet, "/api/forum/posts/"+idPath(id), nil, nil, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// CreatePostInput is the body of POST /api/forum/posts.
type CreatePostInput struct {
	Title      string `json:"title"`
	Body       string `json:"body"`
	CategoryID *uint  `json:"category_id,omitempty"`
	ModelName  string `json:"model_name,omitempty"`
}

func (c *Client) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	var post models.Post
	if err := c.do(ctx, http.MethodPost, "/api/forum/posts", nil, in, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// CreateCommentInput is the body of POST /api/forum/comments.
type CreateCommentInput struct {
	PostID   uint   `json:"post_id"`
	ParentID *uint  `json:"parent_id,omitempty"`
	Body     string `json:"body"`
}

func (c *Client) CreateComment(ctx context.Context, in CreateCommentInput) (*models.Comment, error) {
	var comment models.Comment
	if err := c.do(ctx, http.MethodPost, "/api/forum/comments", nil, in, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// Vote sends a vote. Sending the caller's current direction again withdraws
// it; the server applies the toggle.
func (c *Client) Vote(ctx context.Context, targetType string, targetID uint, voteType string) (*models.VoteResult, error) {
	body := map[string]any{
		"target_type": targetType,
		"target_id":   targetID,
		"vote_type":   voteType,
	}
	var result models.VoteResult
	if err := c.do(ctx, http.MethodPost, "/api/forum/votes", nil, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeletePost soft-deletes a post owned by the caller (or any post for admins).
func (c *Client) DeletePost(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodDelete, "/api/forum/posts/"+idPath(id), nil, nil, nil)
}

func (c *Client) Categories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	if err := c.do(ctx, http.MethodGet, "/api/forum/categories", nil, nil, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

func (c *Client) Stats(ctx context.Context) (*models.ForumStats, error) {
	var stats models.ForumStats
	if err := c.do(ctx, http.MethodGet, "/api/forum/stats", nil, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// UsernameStatus reports whether the caller finished username setup.
func (c *Client) UsernameStatus(ctx context.Context) (*models.UsernameStatus, error) {
	var status models.UsernameStatus
	if err := c.do(ctx, http.MethodGet, "/api/user/username", nil, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// SetUsername claims a username. A taken name fails with a CONFLICT APIError.
func (c *Client) SetUsername(ctx context.Context, username string) (*models.UsernameStatus, error) {
	var status models.UsernameStatus
	err := c.do(ctx, http.MethodPost, "/api/user/username", nil,
		map[string]string{"username": username}, &status)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// CheckBalance compares the caller's balance with the cost of count generations.
func (c *Client) CheckBalance(ctx context.Context, count int) (*models.BalanceCheck, error) {
	var check models.BalanceCheck
	err := c.do(ctx, http.MethodPost, "/api/billing/check-balance", nil,
		map[string]int{"count": count}, &check)
	if err != nil {
		return nil, err
	}
	return &check, nil
}

// SheetLinks lists the spreadsheets generated for a creator model.
func (c *Client) SheetLinks(ctx context.Context, model string) ([]models.SheetLink, error) {
	var links []models.SheetLink
	path := "/api/models/" + url.PathEscape(model) + "/sheet-links"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &links); err != nil {
		return nil, err
	}
	return links, nil
}

func idPath(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
