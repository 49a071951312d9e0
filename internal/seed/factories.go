// Package seed provides helpers to create demo data for the forum and the
// creator tooling. These helpers are intended for development and testing only.
package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"studiodesk/internal/models"
	"studiodesk/internal/repository"
	"studiodesk/internal/validation"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const defaultPassword = "password123"

// Options tune generated content.
type Options struct {
	// RandSeed makes generated content reproducible; 0 uses the clock.
	RandSeed int64
	// SkipBcrypt stores a cheap hash, for tests.
	SkipBcrypt bool
	// MaxDays spreads post timestamps over the last N days.
	MaxDays int
}

// Factory builds domain entities and persists them to the database.
// It is a thin helper used by seed presets and tests.
type Factory struct {
	db       *gorm.DB
	opts     Options
	faker    *gofakeit.Faker
	posts    repository.PostRepository
	comments repository.CommentRepository

	usedNames map[string]struct{}
	now       time.Time
}

// NewFactory creates a new Factory bound to the provided Gorm DB.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	if opts.RandSeed == 0 {
		opts.RandSeed = time.Now().UnixNano()
	}
	if opts.MaxDays <= 0 {
		opts.MaxDays = 30
	}
	return &Factory{
		db:        db,
		opts:      opts,
		faker:     gofakeit.New(opts.RandSeed),
		posts:     repository.NewPostRepository(db),
		comments:  repository.NewCommentRepository(db),
		usedNames: make(map[string]struct{}),
		now:       time.Now(),
	}
}

// intn returns a pseudo-random int in [0, n).
func (f *Factory) intn(n int) int {
	if n <= 1 {
		return 0
	}
	return f.faker.Number(0, n-1)
}

func (f *Factory) chance(p float64) bool {
	return f.faker.Float64Range(0, 1) < p
}

func (f *Factory) hashPassword(password string) (string, error) {
	if f.opts.SkipBcrypt {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		return string(hash), err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

// username derives a unique, valid username from a faker handle.
func (f *Factory) username() string {
	for attempt := 0; ; attempt++ {
		var b strings.Builder
		for _, r := range strings.ToLower(f.faker.Username()) {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
				b.WriteRune(r)
			}
		}
		name := strings.Trim(b.String(), "_")
		if len(name) > 16 {
			name = name[:16]
		}
		if len(name) < 3 || attempt > 3 {
			name = fmt.Sprintf("%s%d", name, f.faker.Number(100, 999))
		}
		if _, taken := f.usedNames[name]; taken {
			continue
		}
		if validation.ValidateUsername(name) != nil {
			continue
		}
		f.usedNames[name] = struct{}{}
		return name
	}
}

// CreateUser constructs and persists a sample user. withUsername false
// leaves username setup pending.
func (f *Factory) CreateUser(ctx context.Context, withUsername bool, overrides ...func(*models.User)) (*models.User, error) {
	name := f.username()
	user := &models.User{
		Email:       name + "@example.test",
		DisplayName: f.faker.Name(),
		Avatar:      fmt.Sprintf("https://i.pravatar.cc/150?u=%s", f.faker.UUID()),
	}
	if withUsername {
		user.Username = &name
	}

	hash, err := f.hashPassword(defaultPassword)
	if err != nil {
		return nil, err
	}
	user.Password = hash

	for _, override := range overrides {
		override(user)
	}

	if err := f.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// EnsureUser returns the user with spec's email, creating it when missing.
func (f *Factory) EnsureUser(ctx context.Context, spec UserSpec, admin bool) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(spec.Email))
	var user models.User
	err := f.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err == nil {
		if admin && !user.IsAdmin {
			if err := f.db.WithContext(ctx).Model(&user).Update("is_admin", true).Error; err != nil {
				return nil, err
			}
			user.IsAdmin = true
		}
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	password := spec.Password
	if password == "" {
		password = defaultPassword
	}
	hash, err := f.hashPassword(password)
	if err != nil {
		return nil, err
	}
	user = models.User{
		Email:       email,
		Password:    hash,
		DisplayName: spec.DisplayName,
		IsAdmin:     admin,
	}
	if spec.Username != "" {
		name := validation.NormalizeUsername(spec.Username)
		if err := validation.ValidateUsername(name); err != nil {
			return nil, fmt.Errorf("seed user %s: %w", email, err)
		}
		user.Username = &name
		f.usedNames[name] = struct{}{}
	}
	if err := f.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// BuildPost constructs a post with a realistic created_at spread but does
// not persist it.
func (f *Factory) BuildPost(author *models.User, category *models.Category, modelName string) *models.Post {
	post := &models.Post{
		Title:  strings.TrimSuffix(f.faker.Sentence(6), "."),
		Body:   f.faker.Paragraph(1, 3, 12, "\n\n"),
		UserID: author.ID,
	}
	if category != nil {
		post.CategoryID = &category.ID
	}
	if modelName != "" {
		post.ModelName = &modelName
	}

	age := time.Duration(f.intn(f.opts.MaxDays))*24*time.Hour +
		time.Duration(f.intn(24))*time.Hour +
		time.Duration(f.intn(60))*time.Minute
	post.CreatedAt = f.now.Add(-age)
	post.UpdatedAt = post.CreatedAt
	return post
}

// CreatePost persists a built post.
func (f *Factory) CreatePost(ctx context.Context, post *models.Post) error {
	return f.posts.Create(ctx, post)
}

// CreateComment persists a comment on post, optionally replying to parent.
func (f *Factory) CreateComment(ctx context.Context, author *models.User, post *models.Post, parent *models.Comment) (*models.Comment, error) {
	comment := &models.Comment{
		Body:   f.faker.Sentence(f.faker.Number(6, 24)),
		UserID: author.ID,
		PostID: post.ID,
	}
	if parent != nil {
		comment.ParentID = &parent.ID
	}
	comment.CreatedAt = post.CreatedAt.Add(time.Duration(f.faker.Number(1, 600)) * time.Minute)
	if comment.CreatedAt.After(f.now) {
		comment.CreatedAt = f.now
	}
	if err := f.comments.Create(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}
