package main

import (
	"context"

	"github.com/supermancell/candle-relay/internal/config"
	"github.com/supermancell/candle-relay/internal/feed"
	"github.com/supermancell/candle-relay/internal/forwarder"
	"github.com/supermancell/candle-relay/internal/handler"
	"github.com/supermancell/candle-relay/internal/logger"
)

// StartForwarder creates the forwarder and starts its worker pool.
// Workers run until Stop, so in-flight candles drain after the feed closes.
func StartForwarder(cfg config.AppConfig, lg logger.Logger) *forwarder.Forwarder {
	lg.Infof("Forwarding candles to %s (%d workers, queue %d)", cfg.Forwarder.URL, cfg.Forwarder.Workers, cfg.Forwarder.QueueSize)
	if cfg.Forwarder.RatePerSecond > 0 {
		lg.Infof("Forward rate limited to %d/s", cfg.Forwarder.RatePerSecond)
	}

	fwd := forwarder.New(cfg.Forwarder, lg)
	fwd.Start(context.Background())
	return fwd
}

// NewFeedClient builds the feed client that hands every candle to fwd.
func NewFeedClient(cfg config.AppConfig, fwd *forwarder.Forwarder, lg logger.Logger) *feed.Client {
	if cfg.Feed.UseProxy {
		lg.Infof("Proxy enabled: %s", cfg.Feed.ProxyAddr)
	} else {
		lg.Infof("Proxy disabled, connecting directly")
	}

	msgHandler := handler.NewCandleMessageHandler(fwd, lg)
	return feed.NewClient(cfg.Feed, msgHandler, lg)
}
