// Package main provides the chat server binary: a framed TCP listener
// backed by PostgreSQL persistence.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/chatserver/internal/chat/directory"
	"github.com/cory-johannsen/chatserver/internal/chatserver"
	"github.com/cory-johannsen/chatserver/internal/config"
	"github.com/cory-johannsen/chatserver/internal/observability"
	"github.com/cory-johannsen/chatserver/internal/server"
	"github.com/cory-johannsen/chatserver/internal/storage/postgres"
	"github.com/cory-johannsen/chatserver/internal/transport"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting chat server",
		zap.String("listen_addr", cfg.Listen.Addr()),
	)

	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)
	store := postgres.NewStore(pool)

	dir := directory.New(logger)
	limits := chatserver.Limits{
		MaxUsernameLength: cfg.Chat.MaxUsernameLength,
		MaxRoomNameLength: cfg.Chat.MaxRoomNameLength,
		MaxMessageLength:  cfg.Chat.MaxMessageLength,
		MaxHashLength:     cfg.Chat.MaxHashLength,
		HistoryDefault:    cfg.Chat.HistoryDefault,
		HistoryMax:        cfg.Chat.HistoryMax,
	}
	dispatcher := chatserver.NewDispatcher(store, chatserver.StandardVerifier{}, dir, limits, logger)

	shardPool := chatserver.NewShardPool(cfg.Chat.Shards, cfg.Chat.ShardQueueDepth, logger)
	processor := chatserver.NewProcessor(dispatcher, dir, shardPool, logger)
	acceptor := transport.NewAcceptor(cfg.Listen, processor, logger)

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("shards", shardPool)
	lifecycle.Add("acceptor", &server.FuncService{
		StartFn: acceptor.ListenAndServe,
		StopFn:  acceptor.Stop,
	})
	lifecycle.Add("postgres", &server.FuncService{
		StartFn: func() error {
			for {
				time.Sleep(30 * time.Second)
				if err := pool.Health(ctx, 5*time.Second); err != nil {
					logger.Warn("database health check failed", zap.Error(err))
				}
			}
		},
		StopFn: func() {
			pool.Close()
		},
	})

	logger.Info("chat server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.Int("shards", cfg.Chat.Shards),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
