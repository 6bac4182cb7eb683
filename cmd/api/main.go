package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/congo_ussd/internal/chain"
	"github.com/congo-pay/congo_ussd/internal/config"
	"github.com/congo-pay/congo_ussd/internal/infra"
	"github.com/congo-pay/congo_ussd/internal/logging"
	"github.com/congo-pay/congo_ussd/internal/metrics"
	"github.com/congo-pay/congo_ussd/internal/routes"
	"github.com/congo-pay/congo_ussd/internal/server"
	"github.com/congo-pay/congo_ussd/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := infra.Migrate(ctx, db); err != nil {
			logger.Error("migrate postgres", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory records")
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	} else {
		logger.Warn("REDIS_URL not set, using in-memory sessions")
	}

	var token chain.Token
	if cfg.ChainRPCURL != "" {
		erc20, err := chain.DialERC20(ctx, cfg.ChainRPCURL, cfg.TokenAddresses, cfg.TokenDecimals)
		if err != nil {
			logger.Error("connect chain rpc", "error", err)
			os.Exit(1)
		}
		defer erc20.Close()
		token = erc20
	} else {
		logger.Warn("CHAIN_RPC_URL not set, using in-memory token balances")
		token = chain.NewInMemory()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(registry)
	if err != nil {
		logger.Error("register metrics", "error", err)
		os.Exit(1)
	}

	srv, err := server.New(routes.Deps{
		Cfg:      cfg,
		DB:       db,
		Cache:    cache,
		Token:    token,
		Logger:   logger,
		Metrics:  m,
		Gatherer: registry,
	})
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	sweeper := session.NewSweeper(srv.Sessions(), cfg.SweepInterval, logger, m.ObserveSweep)
	go sweeper.Run(ctx)

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
