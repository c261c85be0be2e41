package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/supermancell/candle-relay/internal/cache"
	"github.com/supermancell/candle-relay/internal/config"
	httpserver "github.com/supermancell/candle-relay/internal/http"
	"github.com/supermancell/candle-relay/internal/logger"
	"github.com/supermancell/candle-relay/internal/redisclient"
)

// Entry point for the realtime cache service the relay forwards to.
func main() {
	configPath := flag.String("config", os.Getenv("RELAY_CONFIG"), "path to an optional YAML config file")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("%s: can't load config", err)
	}

	lg, syncLog, err := logger.NewZapLogger(logger.ParseLevel(cfg.LogLevel))
	if err != nil {
		log.Fatalf("%s: can't create logger", err)
	}
	defer syncLog()

	lg.Infof("Config loaded: Redis=%s, cache HTTP=%s, window=%d, ttl=%s",
		cfg.Redis.Addr, cfg.Cache.HTTPAddr, cfg.Cache.Window, cfg.Cache.TTL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := redisclient.NewClient(ctx, cfg.Redis, cfg.Cache)
	if err != nil {
		lg.Fatalf("%s: cannot start service without Redis connection", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			lg.Errorf("%s: can't close Redis client", err)
		}
	}()
	lg.Infof("Connected to Redis")

	routes := cache.NewHandler(redisClient, lg).Routes()
	if err := httpserver.NewServer(cfg.Cache.HTTPAddr, routes, lg).Run(ctx); err != nil {
		lg.Errorf("%s: HTTP server error", err)
	}
	lg.Infof("Shutdown complete")
}
