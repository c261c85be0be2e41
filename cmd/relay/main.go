package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/supermancell/candle-relay/internal/config"
	"github.com/supermancell/candle-relay/internal/logger"
)

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

	lg.Infof("Candle Relay - market-data feed to cache forwarder")
	lg.Infof("Config loaded: feed=%s, symbols=%v, forward=%s", cfg.Feed.URL, cfg.Feed.Symbols, cfg.Forwarder.URL)
	lg.Infof("Proxy config: USE_PROXY=%v, PROXY_ADDR=%s", cfg.Feed.UseProxy, cfg.Feed.ProxyAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fwd := StartForwarder(cfg, lg)
	defer fwd.Stop()

	feedClient := NewFeedClient(cfg, fwd, lg)

	healthDone := make(chan struct{})
	go func() {
		defer close(healthDone)
		if err := NewHealthServer(cfg.HealthAddr, feedClient, fwd, lg).Run(ctx); err != nil {
			lg.Errorf("%s: health server stopped", err)
		}
	}()

	lg.Infof("Service is running. Press Ctrl+C to exit.")
	if err := feedClient.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		lg.Errorf("%s: feed client stopped", err)
	}

	lg.Infof("Received shutdown signal, shutting down gracefully...")
	stop()
	<-healthDone
	lg.Infof("Shutdown complete")
}
