package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/supermancell/candle-relay/internal/config"
	httpserver "github.com/supermancell/candle-relay/internal/http"
	"github.com/supermancell/candle-relay/internal/logger"
	"github.com/supermancell/candle-relay/internal/wshub"
)

// Entry point for a local market-data feed that streams random-walk candles
// on /realtime, for running the relay without a broker connection.
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := wshub.NewHub(lg)
	go hub.Run()
	defer hub.Stop()

	gen := wshub.NewGenerator(cfg.MockFeed.Interval, clock.New(), uint64(time.Now().UnixNano()))
	go gen.Run(ctx, hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/realtime", hub.ServeWs)
	mux.HandleFunc("/health", httpserver.NewHealthHandler(map[string]httpserver.Check{
		"feed": func(*http.Request) (bool, string, interface{}) {
			return true, "Mock feed is streaming", hub.Symbols()
		},
	}))

	lg.Infof("Mock feed streaming one candle per symbol every %s", cfg.MockFeed.Interval)
	if err := httpserver.NewServer(cfg.MockFeed.HTTPAddr, mux, lg).Run(ctx); err != nil {
		lg.Errorf("%s: HTTP server error", err)
	}
}
