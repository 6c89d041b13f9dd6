package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-order-ledger/internal/config"
	kafkax "github.com/ariefcatur/go-order-ledger/internal/kafka"
	"github.com/ariefcatur/go-order-ledger/internal/logging"
	"github.com/ariefcatur/go-order-ledger/internal/notify"
	"github.com/ariefcatur/go-order-ledger/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	service := cfg.ServiceName + "-notifier"
	logger, err := logging.New(cfg.LogLevel, service)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	h := &notify.Handler{
		Redis:       rdb,
		Sender:      notify.LogSender{Logger: logger.Named("push")},
		Logger:      logger,
		ServiceName: service,
	}

	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, cfg.NotifyTopic, kafkax.ConsumerOptions{
		Workers:     cfg.NotifierWorkers,
		MaxAttempts: cfg.NotifierMaxAttempts,
	}, logger.Named("kafka"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("notifier consumer started",
			zap.String("group", cfg.NotifierGroup),
			zap.String("topic", cfg.NotifyTopic),
			zap.Int("workers", cfg.NotifierWorkers),
			zap.Int("max_attempts", cfg.NotifierMaxAttempts),
		)
		return cons.Start(gctx, h.Handle)
	})
	if err := g.Wait(); err != nil {
		logger.Error("consumer exit", zap.Error(err))
	}
	logger.Info("notifier stopped")
}
