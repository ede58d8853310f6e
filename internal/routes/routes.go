package routes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/brokerline/brokerline/internal/account"
	"github.com/brokerline/brokerline/internal/auth"
	"github.com/brokerline/brokerline/internal/config"
	"github.com/brokerline/brokerline/internal/funding"
	"github.com/brokerline/brokerline/internal/identity"
	"github.com/brokerline/brokerline/internal/ledger"
	"github.com/brokerline/brokerline/internal/metrics"
	"github.com/brokerline/brokerline/internal/middleware"
	"github.com/brokerline/brokerline/internal/notification"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// ErrorHandler renders handler errors as {"error": message}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := http.StatusInternalServerError
	message := http.StatusText(code)
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}
	return c.Status(code).JSON(fiber.Map{"error": message})
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.Env)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.Env)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)
	RegisterMetricsRoute(app, metrics.NewRegistry())

	var (
		ledgerBackend ledger.Ledger
		accountRepo   account.Repository
		identityRepo  identity.Repository
		keyRepo       auth.KeyRepository
		pushRepo      notification.TokenRepository
		challenges    auth.ChallengeStore
	)
	if d.DB != nil {
		ledgerBackend = ledger.NewPostgresLedger(d.DB)
		accountRepo = account.NewPostgresRepository(d.DB)
		identityRepo = identity.NewPostgresRepository(d.DB)
		keyRepo = auth.NewPostgresKeyRepository(d.DB)
		pushRepo = notification.NewPostgresTokenRepository(d.DB)
	} else {
		d.Logger.Warn("postgres not configured, using in-memory repositories")
		ledgerBackend = ledger.NewInMemory()
		accountRepo = account.NewMemoryRepository()
		identityRepo = identity.NewMemoryRepository()
		keyRepo = auth.NewMemoryKeyRepository()
		pushRepo = notification.NewMemoryTokenRepository()
	}
	if d.Cache != nil {
		challenges = auth.NewRedisChallengeStore(d.Cache)
	} else {
		d.Logger.Warn("redis not configured, using in-memory challenges and no rate limit")
		challenges = auth.NewMemoryChallengeStore()
	}

	identitySvc := identity.NewService(identityRepo, identity.LockoutPolicy{
		MaxAttempts: d.Cfg.PINMaxAttempts,
		Lockout:     d.Cfg.PINLockout,
	})
	tokenSvc := auth.NewService(d.Cfg, identitySvc)
	bioSvc := auth.NewBiometricService(keyRepo, challenges, identitySvc, d.Cfg.ChallengeTTL)
	dispatcher := notification.NewDispatcher(pushRepo, notification.NewLoggerNotifier(d.Logger), d.Logger)
	accountSvc := account.NewService(accountRepo, ledgerBackend)

	setupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	fundingSvc, err := funding.NewService(setupCtx, ledgerBackend, accountSvc, nil)
	if err != nil {
		return err
	}

	authHandler := auth.NewHandler(identitySvc, tokenSvc, bioSvc, dispatcher, d.Logger)
	accountHandler := account.NewHandler(accountSvc)
	fundingHandler := funding.NewHandler(fundingSvc)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	jwtmw := middleware.JWTAuth(tokenSvc)
	idem := middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	rateLimiter := middleware.LoginRateLimit(d.Cache, d.Cfg.LoginRatePerMin)

	RegisterIdentityRoutes(api, identitySvc, tokenSvc, accountSvc, d.Logger)
	RegisterLookupRoute(api, rateLimiter, identitySvc)
	RegisterAuthRoutes(api, authHandler, AuthMiddleware{JWT: jwtmw, RateLimit: rateLimiter, Idempotency: idem})
	RegisterProfileRoute(api, jwtmw, identitySvc)
	RegisterAccountRoutes(api, jwtmw, idem, accountHandler, fundingHandler)

	return nil
}
