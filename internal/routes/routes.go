package routes

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/congo_ussd/internal/chain"
	"github.com/congo-pay/congo_ussd/internal/config"
	"github.com/congo-pay/congo_ussd/internal/funding"
	"github.com/congo-pay/congo_ussd/internal/identity"
	"github.com/congo-pay/congo_ussd/internal/metrics"
	"github.com/congo-pay/congo_ussd/internal/middleware"
	"github.com/congo-pay/congo_ussd/internal/notification"
	"github.com/congo-pay/congo_ussd/internal/payments"
	"github.com/congo-pay/congo_ussd/internal/session"
	"github.com/congo-pay/congo_ussd/internal/transaction"
	"github.com/congo-pay/congo_ussd/internal/ussd"
	"github.com/congo-pay/congo_ussd/internal/wallet"
	"github.com/congo-pay/congo_ussd/internal/walletid"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Token    chain.Token
	Rail     funding.Rail
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// Runtime exposes what the process needs after wiring, beyond the routes themselves.
type Runtime struct {
	Sessions *session.Manager
}

// Setup configures middlewares and all application routes. Without DB or Cache the in-memory
// backends are used, which is only allowed in development.
func Setup(app *fiber.App, d Deps) (Runtime, error) {
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return Runtime{}, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return Runtime{}, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Token == nil {
		d.Token = chain.NewInMemory()
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	var (
		identityRepo identity.Repository
		walletRepo   wallet.Repository
		recordRepo   transaction.Repository
	)
	if d.DB != nil {
		identityRepo = identity.NewPostgresRepository(d.DB)
		walletRepo = wallet.NewPostgresRepository(d.DB)
		recordRepo = transaction.NewPostgresRepository(d.DB)
	} else {
		identityRepo = identity.NewMemoryRepository()
		walletRepo = wallet.NewMemoryRepository()
		recordRepo = transaction.NewInMemory()
	}

	var store session.Store
	if d.Cache != nil {
		store = session.NewRedisStore(d.Cache, d.Cfg.SessionTTL).WithLockTTL(session.LockTTLFor(d.Cfg.CallTimeout))
	} else {
		store = session.NewMemoryStore(d.Cfg.SessionTTL)
	}
	sessions := session.NewManager(store)

	users := identity.NewService(identityRepo)
	wallets := wallet.NewService(walletRepo, d.Token, d.Cfg.TokenSymbol)
	records := transaction.NewService(recordRepo)
	notifier := notification.NewLoggerNotifier(d.Logger)

	fundingSvc, err := funding.NewService(d.Rail, records, notifier, funding.Options{
		FiatCurrency:   d.Cfg.FiatCurrency,
		TokenCurrency:  d.Cfg.TokenSymbol,
		WithdrawalBank: d.Cfg.WithdrawalBank,
		CallTimeout:    d.Cfg.CallTimeout,
	})
	if err != nil {
		return Runtime{}, err
	}
	paymentSvc := payments.NewService(d.Token, records, notifier, d.Cfg.TokenSymbol, d.Cfg.CallTimeout)

	deriver := walletid.NewDeriver(d.Cfg.WalletSalt)
	orchestrator := ussd.NewOrchestrator(ussd.OrchestratorConfig{
		Funding:      fundingSvc,
		Payments:     paymentSvc,
		Deriver:      deriver,
		FiatCurrency: d.Cfg.FiatCurrency,
		TokenSymbol:  d.Cfg.TokenSymbol,
		Logger:       d.Logger,
		Metrics:      d.Metrics,
	})
	machine, err := ussd.NewMachine(ussd.Config{
		Sessions:      sessions,
		Users:         users,
		Wallets:       wallets,
		Records:       records,
		Orchestrator:  orchestrator,
		Deriver:       deriver,
		AppName:       d.Cfg.AppName,
		BootstrapPIN:  d.Cfg.BootstrapPIN,
		FiatCurrency:  d.Cfg.FiatCurrency,
		TokenSymbol:   d.Cfg.TokenSymbol,
		TokenDecimals: d.Cfg.TokenDecimals,
		CallTimeout:   d.Cfg.CallTimeout,
		Logger:        d.Logger,
		Metrics:       d.Metrics,
	})
	if err != nil {
		return Runtime{}, err
	}

	RegisterHealthRoutes(app, d, sessions)
	if d.Gatherer != nil {
		RegisterMetricsRoutes(app, d.Gatherer)
	}

	gateway := app.Group("/ussd")
	RegisterUSSDRoutes(gateway, ussd.NewHandler(machine, d.Logger),
		middleware.RateLimit(d.Cache, d.Cfg.RateLimit, middleware.USSDPhoneKey),
		middleware.Replay(d.Cache, d.Cfg.ReplayTTL, middleware.USSDRequestKey, d.Logger),
	)
	RegisterFundingRoutes(gateway, funding.NewHandler(fundingSvc))

	return Runtime{Sessions: sessions}, nil
}
