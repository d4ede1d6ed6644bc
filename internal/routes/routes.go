package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/kobopay/kobo_pay/internal/account"
	"github.com/kobopay/kobo_pay/internal/auth"
	"github.com/kobopay/kobo_pay/internal/config"
	"github.com/kobopay/kobo_pay/internal/gateway"
	"github.com/kobopay/kobo_pay/internal/ledger"
	"github.com/kobopay/kobo_pay/internal/middleware"
	"github.com/kobopay/kobo_pay/internal/notification"
	"github.com/kobopay/kobo_pay/internal/transfer"
	"github.com/kobopay/kobo_pay/internal/user"
	"github.com/kobopay/kobo_pay/internal/webhook"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// In-process fallbacks only suit development.
	if d.Cfg.Production() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	var (
		store     ledger.Store
		userRepo  user.Repository
		notifiers notification.Store
	)
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB)
		userRepo = user.NewPostgresRepository(d.DB)
		notifiers = notification.NewPostgresStore(d.DB)
	} else {
		store = ledger.NewInMemory()
		userRepo = user.NewMemoryRepository()
		notifiers = notification.NewMemoryStore()
	}

	var gw gateway.Client
	if d.Cfg.GatewayURL != "" {
		gw = gateway.NewHTTPClient(d.Cfg.GatewayURL, d.Cfg.GatewayAPIKey, d.Cfg.GatewayTimeout, d.Logger)
	} else {
		gw = &gateway.StaticClient{}
	}

	userSvc := user.NewService(userRepo)
	authSvc := auth.NewService(d.Cfg, userRepo)
	accountSvc := account.NewService(store, gw, userRepo, d.Logger)
	transferSvc := transfer.NewService(store, gw, notifiers, d.Logger, d.Cfg.GatewayTimeout)
	webhookSvc := webhook.NewService(store, notifiers, d.Cfg.WebhookSecret, d.Logger)

	sweeper := transfer.NewSweeper(transferSvc, d.Cfg.SweepInterval, d.Cfg.SweepHorizon, d.Logger)
	sweeper.Start()
	app.Hooks().OnShutdown(func() error {
		sweeper.Stop()
		return nil
	})

	authHandler := auth.NewHandler(userSvc, authSvc)
	accountHandler := account.NewHandler(accountSvc)
	transferHandler := transfer.NewHandler(transferSvc)
	webhookHandler := webhook.NewHandler(webhookSvc, d.Logger)
	notificationHandler := notification.NewHandler(notifiers)

	// Processor callbacks authenticate by signature, not bearer token, and
	// carry their own event-id idempotency. They stay outside the API group.
	RegisterWebhookRoutes(app, webhookHandler)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	rateLimiter := middleware.LoginRateLimit(d.Cache, 5)
	RegisterAuthRoutes(api, authHandler, rateLimiter, middleware.JWTAuth(d.Cfg, userRepo))

	protected := api.Group("", middleware.JWTAuth(d.Cfg, userRepo))
	if d.Cache != nil {
		protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	protected.Get("/me", func(c *fiber.Ctx) error {
		uid, _ := c.Locals("user_id").(string)
		u, err := userRepo.FindByID(c.UserContext(), uid)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "user not found")
		}
		return c.JSON(fiber.Map{
			"user_id":    u.ID,
			"full_name":  u.FullName,
			"email":      u.Email,
			"phone":      u.Phone,
			"created_at": u.CreatedAt,
		})
	})

	RegisterAccountRoutes(protected, accountHandler)
	RegisterTransferRoutes(protected, transferHandler)
	RegisterNotificationRoutes(protected, notificationHandler)

	return nil
}
