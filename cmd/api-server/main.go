package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/odontocloud/invoice-service/internal/api"
	"github.com/odontocloud/invoice-service/internal/auth"
	"github.com/odontocloud/invoice-service/internal/config"
	"github.com/odontocloud/invoice-service/internal/db"
	"github.com/odontocloud/invoice-service/internal/invoice"
	redisclient "github.com/odontocloud/invoice-service/internal/redis"
	"github.com/odontocloud/invoice-service/internal/scheduling"
)

const version = "1.0.0"

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.Info("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config load error: %v", err)
	}
	if cfg.Env == "dev" {
		logger.SetLevel(logrus.DebugLevel)
	}

	logger.Infof("running in env=%s http_port=%s", cfg.Env, cfg.HTTPPort)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warnf("error closing redis: %v", err)
		}
	}()
	logger.Info("connected to Redis")

	tokens := auth.NewTokenProvider(auth.Credentials{
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	}, cfg.HTTPTimeout, cfg.TokenSkew, logger)

	fetcher := scheduling.NewClient(cfg.SchedulingURL, tokens, cfg.HTTPTimeout, logger)
	store := invoice.NewPgStore(pgPool)
	locker := redisclient.NewRedisAppointmentLocker(rdb, cfg.LockTTL)
	svc := invoice.NewService(store, fetcher, locker, logger)

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		PgPool:  pgPool,
		Redis:   rdb,
		Logger:  logger,
		Env:     cfg.Env,
		Version: version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutting down api-server")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server error: %v", err)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
	}
}
