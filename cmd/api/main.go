package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"rollcall/internal/apiclient"
	"rollcall/internal/auth"
	"rollcall/internal/config"
	"rollcall/internal/httpapi"
	"rollcall/internal/logger"
	"rollcall/internal/metrics"
	"rollcall/internal/queue"
	"rollcall/internal/scheduler"
	"rollcall/internal/store"
	"rollcall/internal/workspace"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.WithError(err).Fatal("invalid configuration")
	}
	logger.Init(cfg)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		logger.Log.WithError(err).Fatal("http server failed")
	}
}

func runHTTP(cfg *config.App) error {
	log := logger.For("api")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		mem := queue.NewInMemory(64)
		if err := drain(ctx, mem); err != nil {
			return err
		}
		log.Warn("memory queue selected, commit journal disabled")
		q = mem
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey, logger.For("queue"))
	}

	client := apiclient.New(cfg.AttendanceAPIURL, cfg.APITimeout)
	rec := metrics.New(prometheus.DefaultRegisterer)

	registry := workspace.NewRegistry(ctx, workspace.Options{
		Dial: func(cred *auth.Credential) workspace.Backend {
			return client.WithToken(cred)
		},
		Publisher:        q,
		Location:         cfg.Location,
		PageSize:         cfg.RosterPageSize,
		FetchConcurrency: cfg.FetchConcurrency,
		SuccessDisplay:   cfg.SaveSuccessTTL,
		Observer:         rec,
		Logger:           logger.For("workspace"),
		OpenChanged:      rec.WorkspacesOpen,
	})

	sched := scheduler.New(registry, scheduler.Config{
		RolloverSpec: cfg.CronRollover,
		EvictSpec:    cfg.CronEvict,
		IdleTTL:      cfg.WorkspaceIdleTTL,
		Location:     cfg.Location,
	}, logger.For("scheduler"))
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	health := map[string]func(context.Context) bool{
		"attendance_api": func(ctx context.Context) bool { return client.Health(ctx) == nil },
	}
	if cfg.QueueBackend == "redis" {
		health["redis"] = redisClient.Healthy
	}

	r := httpapi.NewRouter(httpapi.Deps{
		Workspaces: registry,
		Reports: func(token string) httpapi.Reports {
			return client.WithToken(apiclient.StaticToken(token))
		},
		Reloads:         ctx,
		SigningKey:      cfg.JWTSigningKey,
		Issuer:          cfg.JWTIssuer,
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Health:          health,
		Gatherer:        prometheus.DefaultGatherer,
		Logger:          logger.For("http"),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2*cfg.APITimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.HTTPPort).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	// outstanding requests get 10 seconds
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server forced shutdown")
	}
	log.Info("server exited")
	return nil
}

// drain discards events published to an in-process queue so publishers never
// block on a full buffer.
func drain(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	log := logger.For("queue")
	go func() {
		for msg := range messages {
			log.WithField("message_id", msg.ID).WithField("type", msg.Type).Debug("dropping event, no journal")
		}
	}()
	return nil
}
