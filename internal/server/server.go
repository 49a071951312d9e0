// Package server contains HTTP, SSE and WebSocket handlers for the studiodesk API.
package server

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "studiodesk/docs" // swagger docs
	"studiodesk/internal/cache"
	"studiodesk/internal/config"
	"studiodesk/internal/database"
	"studiodesk/internal/featureflags"
	"studiodesk/internal/middleware"
	"studiodesk/internal/models"
	"studiodesk/internal/notifications"
	"studiodesk/internal/repository"
	"studiodesk/internal/service"
	"studiodesk/internal/sheets"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	limiter        *middleware.Limiter
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	userRepo       repository.UserRepository
	notifier       *notifications.Notifier
	hub            *notifications.Hub
	publisher      *notifications.Publisher
	featureFlags   *featureflags.Manager
	forumService   *service.ForumService
	userService    *service.UserService
	billingService *service.BillingService
	sheetService   *service.SheetService
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	return NewServerWithDeps(cfg, db, cache.ConnectOptional(context.Background(), cfg.RedisURL))
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis and optionally
// performs explicit seeding. redisClient may be nil.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	userRepo := repository.NewUserRepository(db)
	creatorRepo := repository.NewCreatorRepository(db)
	billingRepo := repository.NewBillingRepository(db)

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		limiter:        middleware.NewLimiter(redisClient, cfg.Env),
		promMiddleware: middleware.InitMetrics("studiodesk-api"),
		userRepo:       userRepo,
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
		hub:            notifications.NewHub(),
	}

	// Without Redis, events go straight to this instance's hub.
	if redisClient != nil {
		server.notifier = notifications.NewNotifier(redisClient)
	}
	server.publisher = notifications.NewPublisher(server.hub, server.notifier)

	var events service.EventPublisher
	if server.featureFlags.Enabled(featureflags.ForumRealtime, 0) {
		events = server.publisher
	}

	server.forumService = service.NewForumService(service.ForumRepos{
		Users:      userRepo,
		Posts:      repository.NewPostRepository(db),
		Comments:   repository.NewCommentRepository(db),
		Votes:      repository.NewVoteRepository(db),
		Categories: repository.NewCategoryRepository(db),
		Stats:      repository.NewStatsRepository(db),
	}, events)
	server.userService = service.NewUserService(userRepo, cfg.JWTSecret)
	server.billingService = service.NewBillingService(billingRepo, cfg.GenerationCostCents)
	server.sheetService = service.NewSheetService(service.SheetDeps{
		Creators: creatorRepo,
		Billing:  billingRepo,
		Users:    userRepo,
		Provider: sheets.NewProvider(sheets.Config{
			BaseURL:    cfg.SheetsAPIURL,
			APIKey:     cfg.SheetsAPIKey,
			RatePerSec: cfg.SheetsRatePerSec,
			TemplateID: cfg.SheetsTemplateID,
			StepDelay:  cfg.SheetsDevStepDelay,
		}),
		TemplateID: cfg.SheetsTemplateID,
		CostCents:  cfg.GenerationCostCents,
		Events:     events,
	})

	return server, nil
}

const defaultAllowedOrigins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"

// SetupMiddleware installs the global middleware chain. CORS sits ahead of
// the limiter so 429 responses still carry CORS headers for browsers.
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.ContextMiddleware())

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())
	app.Use(cors.New(s.corsConfig()))
	app.Use(limiter.New(s.globalLimit()))
}

func (s *Server) corsConfig() cors.Config {
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = defaultAllowedOrigins
	}
	return cors.Config{
		AllowOrigins: origins,
		// Last-Event-ID lets EventSource resume the generation stream.
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Cache-Control, Last-Event-ID",
		AllowCredentials: true,
		MaxAge:           int((24 * time.Hour).Seconds()),
	}
}

func (s *Server) globalLimit() limiter.Config {
	max := s.config.RateLimitPerMinute
	if max <= 0 {
		max = 100
	}
	return limiter.Config{
		Max:        max,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Error: "Too many requests, please try again later",
				Code:  models.CodeRateLimited,
			})
		},
	}
}

// Per-route quotas. Login fails closed so a Redis outage cannot open the
// door to password guessing.
var (
	loginQuota         = middleware.Quota{Name: "login", Limit: 10, Window: 5 * time.Minute, FailClosed: true}
	createPostQuota    = middleware.Quota{Name: "create_post", Limit: 5, Window: 5 * time.Minute}
	createCommentQuota = middleware.Quota{Name: "create_comment", Limit: 10, Window: time.Minute}
	voteQuota          = middleware.Quota{Name: "vote", Limit: 60, Window: time.Minute}
	usernameQuota      = middleware.Quota{Name: "set_username", Limit: 5, Window: 10 * time.Minute}
	generateQuota      = middleware.Quota{Name: "generate_sheets", Limit: 3, Window: time.Minute}
)

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	if !s.config.IsProduction() {
		api.Get("/metrics/dashboard", monitor.New(monitor.Config{
			Title: "studiodesk API Metrics",
		}))
	}

	// Swagger documentation
	app.Get("/swagger/*", swagger.HandlerDefault)

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/login", s.limiter.Middleware(loginQuota), s.Login)
	auth.Post("/logout", s.AuthRequired(), s.Logout)

	// Public forum reads
	forum := api.Group("/forum")
	forum.Get("/posts", s.ListPosts)
	forum.Get("/posts/:id", s.GetPost)
	forum.Get("/categories", s.GetCategories)
	forum.Get("/stats", s.GetForumStats)

	// Public model reads
	api.Get("/models/:name/sheet-links", s.GetSheetLinks)

	// WebSocket ticket issuance
	api.Post("/ws/ticket", s.AuthRequired(), s.IssueWSTicket)

	api.Get("/ws/forum", s.TicketRequired(), s.ForumWebsocketHandler())

	// Protected routes
	protected := api.Group("", s.AuthRequired())

	// Forum writes; the username gate is enforced by the service.
	forumWrites := protected.Group("/forum")
	forumWrites.Post("/posts", s.limiter.Middleware(createPostQuota), s.CreatePost)
	forumWrites.Post("/comments", s.limiter.Middleware(createCommentQuota), s.CreateComment)
	forumWrites.Post("/votes", s.limiter.Middleware(voteQuota), s.Vote)
	// Define specific /:id/:action routes BEFORE generic /:id route
	forumWrites.Patch("/posts/:id/pin", s.AdminRequired(), s.PinPost)
	forumWrites.Patch("/posts/:id/lock", s.AdminRequired(), s.LockPost)
	forumWrites.Delete("/posts/:id", s.DeletePost)
	forumWrites.Post("/seed", s.AdminRequired(), s.SeedForum)

	// User routes
	user := protected.Group("/user")
	user.Get("/username", s.GetUsername)
	user.Post("/username", s.limiter.Middleware(usernameQuota), s.SetUsername)

	// Billing
	protected.Post("/billing/check-balance", s.CheckBalance)

	// Sheet generation streams progress as server-sent events.
	protected.Get("/models/:name/sheets/generate", s.limiter.Middleware(generateQuota), s.GenerateSheets)

	// Admin routes
	admin := protected.Group("/admin", s.AdminRequired())
	admin.Get("/feature-flags", s.GetFeatureFlags)
	admin.Get("/admins", s.ListAdmins)
	admin.Put("/users/:userId/admin", s.SetUserAdmin)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	// Redis is optional: caches, tickets and fan-out degrade without it.
	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"service": "studiodesk",
		"version": "1.0.0",
		"status":  overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// AdminRequired returns middleware that rejects non-admin users with 403.
// Must be placed after AuthRequired so that userID is available in locals.
func (s *Server) AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := c.Locals("userID").(uint)

		admin, err := s.userService.IsAdmin(c.UserContext(), userID)
		if err != nil {
			return s.mapServiceError(c, err)
		}
		if !admin {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("Admin access required"))
		}

		return c.Next()
	}
}

func setUser(c *fiber.Ctx, userID uint) {
	c.Locals("userID", userID)
	// Sync to UserContext for logging and downstream services
	ctx := context.WithValue(c.UserContext(), middleware.UserIDKey, userID)
	c.SetUserContext(ctx)
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError(msg))
}

// AuthRequired accepts a Bearer token that verifies and has not been
// revoked at logout.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := middleware.BearerToken(c)
		if raw == "" {
			return unauthorized(c, "Authorization required")
		}
		claims, err := middleware.ParseToken(s.config.JWTSecret, raw)
		if err != nil {
			return unauthorized(c, "Invalid or expired token")
		}
		if s.redis != nil && claims.JTI != "" {
			if n, err := s.redis.Exists(c.UserContext(), revokedTokenKey(claims.JTI)).Result(); err == nil && n > 0 {
				return unauthorized(c, "Token has been revoked")
			}
		}
		setUser(c, claims.UserID)
		return c.Next()
	}
}

// TicketRequired authenticates websocket upgrades. Browsers cannot set
// headers on a websocket handshake, so the client trades its token for a
// single-use ticket first; Bearer tokens are refused here.
func (s *Server) TicketRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ticket := c.Query("ticket")
		if ticket == "" {
			return unauthorized(c, "WebSocket ticket required")
		}
		if s.redis == nil {
			return unauthorized(c, "Invalid or expired WebSocket ticket")
		}
		owner, err := s.redis.GetDel(c.UserContext(), wsTicketKey(ticket)).Result()
		if err != nil {
			return unauthorized(c, "Invalid or expired WebSocket ticket")
		}
		userID, err := strconv.ParseUint(owner, 10, 32)
		if err != nil || userID == 0 {
			return unauthorized(c, "Invalid or expired WebSocket ticket")
		}
		c.Locals("wsTicket", ticket)
		setUser(c, uint(userID))
		return c.Next()
	}
}

func revokedTokenKey(jti string) string {
	return "blacklist:" + jti
}

// optionalUserID attempts to extract userID from Authorization header but does not enforce it.
func (s *Server) optionalUserID(c *fiber.Ctx) uint {
	tokenString := middleware.BearerToken(c)
	if tokenString == "" {
		return 0
	}
	claims, err := middleware.ParseToken(s.config.JWTSecret, tokenString)
	if err != nil {
		return 0
	}
	return claims.UserID
}

// NewApp builds the Fiber app with middleware and routes installed.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "studiodesk API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return models.RespondWithError(c, fe.Code, fe)
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", "path", c.Path(), "error", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// Start relays cross-instance events to the hub and serves HTTP until the
// listener is closed.
func (s *Server) Start() error {
	s.shutdownCtx, s.shutdownFn = context.WithCancel(context.Background())
	s.app = s.NewApp()

	if s.notifier != nil {
		go func() {
			if err := s.hub.Relay(s.shutdownCtx, s.notifier); err != nil {
				middleware.Logger.Warn("realtime relay not started", "hub", s.hub.Name(), "error", err)
			}
		}()
	}

	middleware.Logger.Info("listening", "port", s.config.Port, "env", s.config.Env)
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown stops background work and streams, drains HTTP, closes every
// websocket and then the stores. All failures are returned joined.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	var errs []error
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http: %w", err))
		}
	}
	if err := s.hub.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("%s hub: %w", s.hub.Name(), err))
	}
	if sqlDB, err := s.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}

	middleware.Logger.Info("shutdown complete", "errors", len(errs))
	return errors.Join(errs...)
}
