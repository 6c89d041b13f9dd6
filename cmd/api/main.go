package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-order-ledger/internal/config"
	"github.com/ariefcatur/go-order-ledger/internal/coupons"
	"github.com/ariefcatur/go-order-ledger/internal/fulfillment"
	"github.com/ariefcatur/go-order-ledger/internal/httpx"
	kafkax "github.com/ariefcatur/go-order-ledger/internal/kafka"
	"github.com/ariefcatur/go-order-ledger/internal/ledger"
	"github.com/ariefcatur/go-order-ledger/internal/logging"
	"github.com/ariefcatur/go-order-ledger/internal/memstore"
	"github.com/ariefcatur/go-order-ledger/internal/notify"
	"github.com/ariefcatur/go-order-ledger/internal/postgres"
	"github.com/ariefcatur/go-order-ledger/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rules, err := ledger.LoadRules(cfg.LoyaltyRulesFile)
	if err != nil {
		logger.Fatal("loyalty rules", zap.Error(err))
	}

	// Store
	var store fulfillment.Store
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn("using in-memory store, state is lost on exit")
		store = memstore.New()
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PGMaxConns)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
		store = &postgres.Store{DB: db}
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer untuk notifikasi (best-effort)
	prodCtx, stopProducer := context.WithCancel(context.Background())
	defer stopProducer()
	prod := kafkax.NewProducer(cfg.KafkaBrokers, cfg.NotifyTopic, 1024, logger.Named("kafka"))
	prod.Start(prodCtx)

	coord, err := fulfillment.New(fulfillment.Deps{
		Store:   store,
		Ledger:  ledger.NewService(rules, logger.Named("ledger")),
		Coupons: &coupons.Tracker{Logger: logger.Named("coupons")},
		Notifier: &notify.Dispatcher{
			Producer: prod,
			Service:  cfg.ServiceName,
			Logger:   logger.Named("notify"),
		},
		Logger:  logger.Named("fulfillment"),
		Retries: cfg.TransitionRetries,
	})
	if err != nil {
		logger.Fatal("coordinator", zap.Error(err))
	}

	router := httpx.NewRouter(logger.Named("http"))
	(&httpx.OrdersHandler{Engine: coord, Redis: rdb, Logger: logger}).Register(router)
	(&httpx.WalletHandler{Engine: coord, Redis: rdb, Logger: logger}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server exit", zap.Error(err))
	}

	prod.Close()      // tutup inbox -> flush & close writer
	stopProducer()    // stop producer loop
	prod.WaitClosed() // drain
}
