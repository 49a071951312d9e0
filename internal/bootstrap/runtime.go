// Package bootstrap connects runtime dependencies and prepares the database
// for the server and command-line tools.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"studiodesk/internal/cache"
	"studiodesk/internal/config"
	"studiodesk/internal/database"
	"studiodesk/internal/middleware"
	"studiodesk/internal/models"
	"studiodesk/internal/repository"
	"studiodesk/internal/seed"
	"studiodesk/internal/validation"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	defaultRootUsername = "studio_root"
	defaultRootEmail    = "root@studiodesk.local"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedPreset names a preset applied when the forum has no posts yet.
	SeedPreset string
}

// InitRuntime opens the database, connects Redis when reachable and runs
// Prepare. A nil *redis.Client means the cache is disabled.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	ctx := context.Background()

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	rdb := cache.ConnectOptional(ctx, cfg.RedisURL)

	if err := Prepare(ctx, cfg, db, opts); err != nil {
		return nil, nil, err
	}
	return db, rdb, nil
}

// Prepare ensures the development root admin and applies the seed preset.
func Prepare(ctx context.Context, cfg *config.Config, db *gorm.DB, opts Options) error {
	if err := ensureRootAdmin(ctx, cfg, db); err != nil {
		return fmt.Errorf("root admin: %w", err)
	}
	if opts.SeedPreset == "" {
		return nil
	}

	summary, err := seedIfEmpty(ctx, db, opts.SeedPreset)
	if err != nil {
		return fmt.Errorf("seed preset %q: %w", opts.SeedPreset, err)
	}
	if summary != nil {
		middleware.Logger.Info("seeded preset",
			"preset", summary.Preset,
			"users", summary.Users,
			"posts", summary.Posts,
			"comments", summary.Comments,
		)
	}
	return nil
}

// seedIfEmpty applies the preset unless posts already exist. It returns nil
// when nothing was seeded.
func seedIfEmpty(ctx context.Context, db *gorm.DB, name string) (*seed.Summary, error) {
	var posts int64
	if err := db.WithContext(ctx).Model(&models.Post{}).Count(&posts).Error; err != nil {
		return nil, err
	}
	if posts > 0 {
		return nil, nil
	}

	preset, err := seed.LoadPreset(name)
	if err != nil {
		return nil, err
	}
	return seed.NewSeeder(db, seed.Options{}).ApplyPreset(ctx, preset)
}

// rootAccount reads the DEV_ROOT_* settings. ok is false when the root
// admin is not wanted in this environment.
func rootAccount(cfg *config.Config) (acct repository.RootAccount, ok bool, err error) {
	if cfg == nil || !cfg.DevBootstrapRoot || !strings.EqualFold(cfg.Env, "development") {
		return acct, false, nil
	}
	if cfg.DevRootPassword == "" {
		return acct, false, errors.New("DEV_ROOT_PASSWORD must be set when DEV_BOOTSTRAP_ROOT is enabled")
	}

	acct.Username = validation.NormalizeUsername(cfg.DevRootUsername)
	if acct.Username == "" {
		acct.Username = defaultRootUsername
	}
	if err := validation.ValidateUsername(acct.Username); err != nil {
		return acct, false, fmt.Errorf("DEV_ROOT_USERNAME: %w", err)
	}
	acct.Email = strings.ToLower(strings.TrimSpace(cfg.DevRootEmail))
	if acct.Email == "" {
		acct.Email = defaultRootEmail
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.DevRootPassword), bcrypt.DefaultCost)
	if err != nil {
		return acct, false, err
	}
	acct.PasswordHash = string(hash)
	acct.Overwrite = cfg.DevRootForceCredentials
	return acct, true, nil
}

func ensureRootAdmin(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	acct, ok, err := rootAccount(cfg)
	if err != nil || !ok {
		return err
	}
	created, err := repository.NewUserRepository(db).EnsureRoot(ctx, acct)
	if err != nil {
		return err
	}
	middleware.Logger.Info("root admin ready", "user_id", 1, "email", acct.Email, "created", created)
	return nil
}
