package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"rollcall/internal/config"
	"rollcall/internal/journal"
	"rollcall/internal/logger"
	"rollcall/internal/metrics"
	"rollcall/internal/queue"
	"rollcall/internal/store"
)

// Worker consumes commit events from the queue and records them in the journal.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.WithError(err).Fatal("invalid configuration")
	}
	logger.Init(cfg)
	log := logger.For("worker")

	if cfg.QueueBackend != "redis" {
		log.Fatal("worker needs QUEUE_BACKEND=redis")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("db connect failed")
	}
	defer db.Close()

	repo := journal.NewRepository(db.Client)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.WithError(err).Fatal("journal schema setup failed")
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey, logger.For("queue"))

	rec := metrics.New(prometheus.DefaultRegisterer)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.WithError(err).Fatal("queue consume init failed")
	}

	log.WithField("queue", cfg.QueueKey).Info("worker started, waiting for messages")
	for msg := range messages {
		handle(ctx, repo, rec, msg)
	}
	log.Info("worker stopped")
}

func handle(ctx context.Context, repo *journal.Repository, rec *metrics.Recorder, msg queue.Message) {
	log := logger.For("worker").WithField("message_id", msg.ID)
	if msg.Type != journal.EventType {
		log.WithField("type", msg.Type).Debug("skipping message")
		return
	}

	evt, err := journal.Decode(msg)
	if err != nil {
		rec.JournalEvent("invalid")
		log.WithError(err).Warn("dropping undecodable commit event")
		return
	}
	log = log.WithField("class_id", evt.ClassID).WithField("date", evt.Date.String())

	saved, err := repo.Save(ctx, evt)
	switch {
	case err != nil:
		rec.JournalEvent("failed")
		log.WithError(err).Error("journal write failed")
	case !saved:
		rec.JournalEvent("duplicate")
		log.Debug("commit event already journaled")
	default:
		rec.JournalEvent("saved")
		log.WithField("entries", len(evt.Entries)).Info("commit journaled")
	}
}
