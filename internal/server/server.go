// Package server contains the HTTP and WebSocket handlers of the marketplace API.
package server

import (
	"context"
	"errors"
	"time"

	_ "classifieds/docs" // swagger docs
	"classifieds/internal/authz"
	"classifieds/internal/bootstrap"
	"classifieds/internal/cache"
	"classifieds/internal/config"
	"classifieds/internal/middleware"
	"classifieds/internal/models"
	"classifieds/internal/notifications"
	"classifieds/internal/repository"
	"classifieds/internal/service"
	"classifieds/internal/storage"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const defaultBodyLimit = 10 * 1024 * 1024

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	categoryCache *cache.CategoryCache
	notifier      *notifications.Notifier
	hub           *notifications.Hub

	listings *service.ListingService
	messages *service.MessageService
	images   *service.ImageService
}

// NewServer connects every backing service from cfg and builds the Server.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	rt, err := bootstrap.InitRuntime(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewServerWithDeps(cfg, rt.DB, rt.Redis, rt.Store)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient and store may be nil.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, store storage.ObjectStore) (*Server, error) {
	if db == nil {
		return nil, errors.New("server requires a database")
	}

	productRepo := repository.NewProductRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	imageRepo := repository.NewImageRepository(db)
	guard := authz.NewGuard()

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("classifieds-api"),
		categoryCache:  cache.NewCategoryCache(categoryRepo.List, cfg.CategoryCacheTTL),
		notifier:       notifications.NewNotifier(redisClient),
		hub:            notifications.NewHub(),
	}

	server.listings = service.NewListingService(productRepo, categoryRepo, server.categoryCache, guard)
	server.messages = service.NewMessageService(productRepo, messageRepo, guard, server.notifier)
	server.images = service.NewImageService(productRepo, imageRepo, store, guard, service.ImageServiceConfig{
		MaxUploadSizeMB:     cfg.ImageMaxUploadMB,
		MaxImagesPerProduct: cfg.ImageMaxPerItem,
		URLTTL:              cfg.StorageURLTTL,
	})

	return server, nil
}

// NewApp returns a Fiber app with the middleware chain and every route registered.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:       "Classifieds API",
		StrictRouting: true,
		BodyLimit:     defaultBodyLimit,
		ErrorHandler:  s.errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
	}
	middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", "path", c.Path(), "error", err)
	return models.RespondWithAppError(c, err)
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))

	app.Use(middleware.TracingMiddleware())

	// Identity extraction never rejects; handlers decide what anonymous callers may do.
	app.Use(middleware.Identity(middleware.IdentityConfig{
		Secret:   s.config.JWTSecret,
		Issuer:   s.config.JWTIssuer,
		Audience: s.config.JWTAudience,
		Cookie:   s.config.AuthCookie,
	}))

	// Context Middleware to propagate request, user and trace IDs
	app.Use(middleware.ContextMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	app.Use(middleware.StructuredLogger())

	// CORS runs before middlewares that can short-circuit (e.g. limiter)
	// so browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		ExposeHeaders:    "Location, X-Trace-ID, Retry-After",
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		// Never rate-limit preflight requests; they should be handled by CORS.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	if !s.config.IsProduction() {
		app.Get("/monitor", monitor.New(monitor.Config{Title: "Classifieds Metrics Dashboard"}))
	}
	app.Get("/swagger/*", swagger.HandlerDefault)

	app.Get("/", s.Home)
	app.Get("/list/", s.ListProducts)

	// /product/create/ is registered before /product/:id/ so "create" is never read as an id.
	product := app.Group("/product")
	product.Get("/create/", s.CreateProductForm)
	product.Post("/create/", s.CreateProduct)
	product.Get("/:id/", s.GetProduct)
	product.Post("/:id/", middleware.RateLimit(
		s.config.Env, s.redis, s.messageRateLimit(), time.Minute, "messages"), s.SendMessage)
	product.Get("/:id/edit/", s.EditProductForm)
	product.Post("/:id/edit/", s.UpdateProduct)
	product.Get("/:id/delete/", s.DeleteProductConfirm)
	product.Post("/:id/delete/", s.DeleteProduct)
	product.Post("/:id/images/", s.UploadProductImage)
	product.Post("/:id/images/:imageId/main/", s.SetMainProductImage)

	messages := app.Group("/messages")
	messages.Get("/", s.Inbox)
	messages.Post("/:id/read/", s.MarkMessageRead)

	app.Get("/ws/notifications", s.requireWebSocket, s.NotificationsWebSocket())
}

func (s *Server) messageRateLimit() int {
	if s.config.MessageRateLimitPerMinute > 0 {
		return s.config.MessageRateLimitPerMinute
	}
	return 10
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests. Redis is optional: when it
// is not configured the check reports it as disabled.
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

	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	storageStatus := "disabled"
	if s.images.Enabled() {
		storageStatus = "configured"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
			"storage":  storageStatus,
		},
		"time": time.Now(),
	})
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	s.app = s.NewApp()

	if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
		middleware.Logger.Warn("failed to start notification wiring", "error", err)
	}

	middleware.Logger.Info("Server starting", "port", s.config.Port)
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Cancel the server-scoped context to stop the Redis subscriber
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", "error", err)
		}
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		middleware.Logger.Error("error shutting down notification hub", "error", err)
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", "error", cerr)
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", "error", rerr)
		}
	}

	middleware.Logger.Info("Server shutdown complete")
	return nil
}
