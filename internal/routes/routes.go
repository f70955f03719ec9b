package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/aquadrop/aquadrop/internal/auth"
	"github.com/aquadrop/aquadrop/internal/config"
	"github.com/aquadrop/aquadrop/internal/identity"
	"github.com/aquadrop/aquadrop/internal/logging"
	"github.com/aquadrop/aquadrop/internal/metrics"
	"github.com/aquadrop/aquadrop/internal/middleware"
	"github.com/aquadrop/aquadrop/internal/notification"
	"github.com/aquadrop/aquadrop/internal/stock"
	"github.com/aquadrop/aquadrop/internal/verification"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Registry *prometheus.Registry
	// HTTPClient is used for outbound provider calls. Defaults to a client
	// with a 10s timeout.
	HTTPClient *http.Client
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
	}
	if d.HTTPClient == nil {
		d.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)
	RegisterMetricsRoute(app, d.Registry)

	// Services and handlers
	rec := metrics.NewCollector(d.Registry)

	var identityRepo identity.Repository
	if d.DB != nil {
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		identityRepo = identity.NewMemoryRepository()
	}
	identitySvc := identity.NewService(identityRepo)

	lockoutCfg := auth.LockoutConfig{Threshold: d.Cfg.Lockout.Threshold, Duration: d.Cfg.Lockout.Duration}
	var lockout auth.Lockout
	if d.Cache != nil {
		lockout = auth.NewRedisLockout(d.Cache, lockoutCfg)
	} else {
		lockout = auth.NewMemoryLockout(lockoutCfg)
	}
	tokens := auth.NewTokenManager(d.Cfg.JWTSecret, d.Cfg.AppName)
	authSvc := auth.NewService(identitySvc, tokens, lockout, auth.Config{
		SessionTTL:    d.Cfg.SessionTTL,
		SetupTokenTTL: d.Cfg.SetupTokenTTL,
		FailureDelay:  d.Cfg.Lockout.FailureDelay,
	}, logging.WithCategory(d.Logger, "auth"), rec)

	dispatcher, debugSlot, err := newDispatcher(d, rec)
	if err != nil {
		return err
	}

	storeOpts := []verification.StoreOption{verification.WithTTL(d.Cfg.Verification.TTL)}
	var codeStore verification.Store
	if d.Cache != nil {
		codeStore = verification.NewRedisStore(d.Cache, storeOpts...)
	} else {
		codeStore = verification.NewMemoryStore(storeOpts...)
	}
	flow, err := verification.NewFlow(verification.FlowConfig{
		Store:        codeStore,
		Sender:       dispatcher,
		Accounts:     identitySvc,
		PhonePattern: d.Cfg.PhonePattern(),
		Logger:       logging.WithCategory(d.Logger, "verification"),
		Metrics:      rec,
	})
	if err != nil {
		return err
	}

	var stockLedger stock.Ledger
	if d.DB != nil {
		stockLedger = stock.NewPostgresLedger(d.DB)
	} else {
		stockLedger = stock.NewInMemory()
	}
	stockSvc := stock.NewService(stockLedger, logging.WithCategory(d.Logger, "stock"), rec)

	verificationHandler := verification.NewHandler(flow, verification.SetupIssuerFunc(func(a identity.Account) (string, time.Time, error) {
		s, err := authSvc.IssueSetupToken(a)
		return s.Token, s.ExpiresAt, err
	}), d.Logger)
	authHandler := auth.NewHandler(authSvc, d.Logger)
	stockHandler := stock.NewHandler(stockSvc, d.Logger, accountIDFrom)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	RegisterVerificationRoutes(api, verificationHandler,
		middleware.Throttle(d.Cache, d.Cfg.ThrottlePerMinute, "verification"))
	RegisterAuthRoutes(api, authHandler,
		middleware.Throttle(d.Cache, d.Cfg.ThrottlePerMinute, "login"),
		middleware.JWTAuth(authSvc, auth.ScopePINSetup),
		middleware.JWTAuth(authSvc, auth.ScopeSession))
	if d.Cfg.IsDev() && debugSlot != nil {
		RegisterDebugRoutes(api, debugSlot)
		d.Logger.Warn("debug verification codes enabled")
	}

	// Protected routes
	protected := api.Group("", middleware.JWTAuth(authSvc, auth.ScopeSession))
	RegisterProfileRoute(protected, identitySvc)

	var idempotency fiber.Handler
	if d.Cache != nil {
		idempotency = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}
	RegisterStockRoutes(protected, stockHandler, idempotency)

	return nil
}

func accountIDFrom(c *fiber.Ctx) string {
	id, _ := c.Locals(auth.LocalAccountID).(string)
	return id
}

// newDispatcher builds the verification dispatcher from config. The debug
// slot is returned only when debug codes are enabled.
func newDispatcher(d Deps, rec metrics.Recorder) (*notification.Dispatcher, notification.DebugSlot, error) {
	logger := logging.WithCategory(d.Logger, "dispatch")

	primary, err := channelFor(d.Cfg.Verification.Channel, d, logger)
	if err != nil {
		return nil, nil, err
	}
	opts := []notification.DispatcherOption{notification.WithMetrics(rec)}
	if d.Cfg.Verification.SMSFallback && primary.Name() != notification.ChannelSMS {
		fallback, err := channelFor(notification.ChannelSMS, d, logger)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, notification.WithFallback(fallback))
	}

	var slot notification.DebugSlot
	if d.Cfg.Verification.DebugCodes && d.Cfg.IsDev() {
		if d.Cache != nil {
			slot = notification.NewRedisDebugSlot(d.Cache, d.Cfg.Verification.TTL)
		} else {
			slot = notification.NewMemoryDebugSlot()
		}
		opts = append(opts, notification.WithDebugSlot(slot))
	}

	return notification.NewDispatcher(primary, d.Cfg.AppName, d.Cfg.Verification.TTL, logger, opts...), slot, nil
}

func channelFor(name string, d Deps, logger *slog.Logger) (notification.Channel, error) {
	switch name {
	case notification.ChannelWhatsApp:
		wa := d.Cfg.WhatsApp
		return notification.NewWhatsAppChannel(d.HTTPClient, wa.BaseURL, wa.Token, wa.PhoneNumberID), nil
	case notification.ChannelSMS:
		sms := d.Cfg.SMS
		return notification.NewSMSChannel(d.HTTPClient, sms.BaseURL, sms.AccountSID, sms.AuthToken, sms.From), nil
	case notification.ChannelLog:
		return notification.NewLoggerChannel(logger), nil
	default:
		return nil, fmt.Errorf("unknown verification channel %q", name)
	}
}
