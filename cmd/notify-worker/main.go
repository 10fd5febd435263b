package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openhaus/realty-api/internal/config"
	"github.com/openhaus/realty-api/internal/db"
	"github.com/openhaus/realty-api/internal/mail"
	"github.com/openhaus/realty-api/internal/notification"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "notify-worker")
	logger.Info("notify-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load error", "err", err)
		os.Exit(1)
	}

	logger.Info("running notify worker", "env", cfg.Env, "interval", cfg.WorkerInterval.String())

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Error("postgres connection error", "err", err)
		os.Exit(1)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	repo := notification.NewPgRepository(pgPool)
	sender := mail.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.MailFrom)
	dispatcher := notification.NewDispatcher(repo, sender, logger, cfg.OutboxBatchSize)
	publisher := notification.NewPublisher(repo, logger, cfg.KafkaBrokers, cfg.OutboxBatchSize)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("error closing kafka writer", "err", err)
		}
	}()

	// Run once at startup
	runOnce(rootCtx, dispatcher, publisher, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping notify worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, dispatcher, publisher, logger)
		}
	}
}

func runOnce(ctx context.Context, d *notification.Dispatcher, p *notification.Publisher, logger *slog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if err := d.RunOnce(runCtx); err != nil {
		logger.Error("email drain error", "err", err)
	}
	if err := p.RunOnce(runCtx); err != nil {
		logger.Error("event publish error", "err", err)
	}
	logger.Info("outbox drain complete", "duration", time.Since(start).String())
}
