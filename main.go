package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"cache-engine/internal/cache"
	"cache-engine/internal/common/logging"
	"cache-engine/internal/config"
	"cache-engine/internal/redis"
	"cache-engine/internal/server"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logging.InitGlobalLogger()
	defer logging.MustSync()
	logger := logging.GetGlobalLogger()

	// Connect the remote tier. A connection failure at startup degrades the
	// engine to local-only instead of aborting.
	var remoteClient *redis.Client
	if cfg.EnableMultiLevel {
		client, err := redis.NewClient(&redis.Config{
			Address:   cfg.RedisAddress,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			PoolSize:  cfg.RedisPoolSize,
			KeyPrefix: cfg.CachePrefix,
			OpTimeout: cfg.RedisOpTimeout,
		}, logger)
		if err != nil {
			logger.Warn("Remote tier unavailable, running local-only", logging.Err(err))
		} else {
			remoteClient = client
			defer remoteClient.Close()
		}
	}

	opts := []cache.Option{
		cache.WithConfig(cache.Config{
			DefaultTTL:           cfg.DefaultTTL,
			MaxLocalEntries:      cfg.MaxLocalEntries,
			EnableMultiLevel:     remoteClient != nil,
			EnableStats:          cfg.EnableStats,
			EnableEvents:         cfg.EnableEvents,
			EventChannel:         cfg.EventChannel,
			SnowballJitter:       cfg.SnowballJitter,
			PenetrationThreshold: cfg.PenetrationThreshold,
		}),
		cache.WithLogger(logger),
		cache.WithPrometheus(prometheus.DefaultRegisterer),
	}
	if cfg.EnableEvents && remoteClient != nil {
		opts = append(opts, cache.WithEventBus(
			cache.NewEventBus(remoteClient, cfg.EventChannel, logger),
		))
	}

	var remote cache.RemoteTier
	if remoteClient != nil {
		remote = remoteClient
	}
	engine := cache.NewOrchestrator(remote, opts...)
	defer engine.Close()

	var health server.HealthChecker
	if remoteClient != nil {
		health = remoteClient
	}
	srv := server.New(cfg.Port, engine, health, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Shutting down", logging.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("Ops server failed", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Ops server shutdown failed", err)
	}
}
