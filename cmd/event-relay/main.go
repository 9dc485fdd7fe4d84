package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	amqpclient "github.com/hackgods/clinic-appointment-booking/internal/amqp"
	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/events"
	"github.com/hackgods/clinic-appointment-booking/internal/logging"
	redisclient "github.com/hackgods/clinic-appointment-booking/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("event-relay", "dev", "")
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New("event-relay", cfg.Env, cfg.Version)
	logger.Info().
		Dur("interval", cfg.RelayInterval).
		Int("batch_size", cfg.RelayBatchSize).
		Msg("event-relay starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.DBMaxConns, cfg.DBMinConns)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	publishers := events.Fanout{redisclient.NewChangeFeed(rdb)}

	if cfg.AMQPURL != "" {
		broker, err := amqpclient.Dial(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Fatal().Err(err).Msg("amqp connection error")
		}
		defer func() {
			if err := broker.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing amqp")
			}
		}()
		publishers = append(publishers, broker)
		logger.Info().Str("exchange", cfg.AMQPExchange).Msg("connected to AMQP")
	} else {
		logger.Warn().Msg("AMQP_URL not set, notifications go to Redis only")
	}

	relay := events.NewRelay(events.NewPgOutbox(pgPool), publishers, cfg.RelayBatchSize, logger)
	relay.Run(rootCtx, cfg.RelayInterval)

	logger.Info().Msg("shutdown signal received, event-relay stopped")
}
