package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/odontocloud/invoice-service/internal/auth"
	"github.com/odontocloud/invoice-service/internal/config"
	"github.com/odontocloud/invoice-service/internal/db"
	"github.com/odontocloud/invoice-service/internal/invoice"
	"github.com/odontocloud/invoice-service/internal/queue"
	redisclient "github.com/odontocloud/invoice-service/internal/redis"
	"github.com/odontocloud/invoice-service/internal/scheduling"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.Info("queue-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config load error: %v", err)
	}
	if cfg.Env == "dev" {
		logger.SetLevel(logrus.DebugLevel)
	}

	logger.Infof("running in env=%s queue=%s workers=%d", cfg.Env, cfg.QueueName, cfg.ConsumerWorkers)

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

	// Connect RabbitMQ
	conn, err := queue.Connect(cfg.AMQPURL)
	if err != nil {
		logger.Fatalf("amqp connection error: %v", err)
	}
	defer conn.Close()
	logger.Info("connected to RabbitMQ")

	tokens := auth.NewTokenProvider(auth.Credentials{
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	}, cfg.HTTPTimeout, cfg.TokenSkew, logger)

	fetcher := scheduling.NewClient(cfg.SchedulingURL, tokens, cfg.HTTPTimeout, logger)
	store := invoice.NewPgStore(pgPool)
	locker := redisclient.NewRedisAppointmentLocker(rdb, cfg.LockTTL)
	svc := invoice.NewService(store, fetcher, locker, logger)

	consumer, err := queue.NewConsumer(conn, cfg.QueueName, cfg.ConsumerWorkers, svc, logger)
	if err != nil {
		logger.Fatalf("consumer setup error: %v", err)
	}

	if err := consumer.Run(rootCtx); err != nil {
		logger.Errorf("consumer stopped: %v", err)
	}

	logger.Info("queue-worker shut down")
}
