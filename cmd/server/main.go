package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/growfi/growfi-server/internal/catalog"
	"github.com/growfi/growfi-server/internal/config"
	"github.com/growfi/growfi-server/internal/database"
	"github.com/growfi/growfi-server/internal/handler"
	"github.com/growfi/growfi-server/internal/ledger"
	"github.com/growfi/growfi-server/internal/middleware"
	"github.com/growfi/growfi-server/internal/purchase"
	"github.com/growfi/growfi-server/internal/queue"
	"github.com/growfi/growfi-server/internal/repository"
	"github.com/growfi/growfi-server/internal/router"
	"github.com/growfi/growfi-server/internal/service"
	"github.com/growfi/growfi-server/internal/session"
)

// walletTTL is how long the last connected wallet is remembered.
const walletTTL = 30 * 24 * time.Hour

func main() {
	if err := config.LoadDotenv(); err != nil {
		panic(err)
	}
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}

	dbOpts, err := database.FromConfig(cfg)
	if err != nil {
		return err
	}
	db, err := database.Open(dbOpts)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db, dbOpts.Dialect); err != nil {
		return err
	}

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		log.Warn("redis unreachable; rate limiting and response cache disabled, wallets remembered in memory")
	} else {
		defer rdb.Close()
	}

	led, closeLedger, err := ledger.Open(cfg.LedgerMode, cfg.LedgerGatewayURL, cfg.LedgerNetwork, cfg.LedgerCallTimeout, log)
	if err != nil {
		return err
	}
	defer closeLedger()
	if led.Mode() == "simulate" {
		log.Warn("ledger simulation mode: confirmations are fabricated and flagged simulated")
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	ownership := repository.NewOwnershipRepo(db, dbOpts.Dialect)
	wallets := repository.NewWalletStore(rdb, walletTTL, log)

	sessions := session.NewRegistry(purchase.Deps{
		Connector: ledger.NewWalletConnector(led),
		Ledger:    led,
		Store:     ownership,
		Wallets:   wallets,
		Events:    service.NewQueuePublisher(cfg.RabbitURL, log),
		Log:       log,
	}, session.Options{
		IdleTTL:     cfg.SessionIdleTTL,
		CallTimeout: cfg.LedgerCallTimeout,
		Log:         log.Named("session"),
	})
	defer sessions.Close()
	go sessions.Run(ctx, time.Minute)

	if cfg.ConsumerEnabled {
		consumer := queue.NewConsumer(cfg.RabbitURL, cfg.LogDir, log)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("purchase consumer stopped", zap.Error(err))
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log.Named("http")))
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log))

	router.RegisterRoutes(e, &handler.HealthHandler{DB: db, Redis: rdb, LedgerMode: led.Mode()})
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens, wallets, log), cfg.JWTSecret)
	router.RegisterPublic(e, &handler.FarmHandler{Catalog: cat}, middleware.NewRedisCache(config.LoadCacheConfig(), rdb, log))
	router.RegisterLedger(e, handler.NewMPTHandler(led, cfg.LedgerCallTimeout, log.Named("mpt")), cfg.JWTSecret)
	portfolio := handler.NewPortfolioHandler(cat, ownership)
	router.RegisterInvestor(e, handler.NewSessionHandler(cat, sessions, log.Named("stream")), portfolio, cfg.JWTSecret)
	router.RegisterOperator(e, portfolio, cfg.JWTSecret)

	errc := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env),
			zap.String("ledger", led.Mode()), zap.Int("farms", len(cat.List())))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
