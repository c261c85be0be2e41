package main

import (
	"net/http"

	"github.com/supermancell/candle-relay/internal/feed"
	"github.com/supermancell/candle-relay/internal/forwarder"
	httpserver "github.com/supermancell/candle-relay/internal/http"
	"github.com/supermancell/candle-relay/internal/logger"
)

// NewHealthServer exposes GET /health for the feed connection and the forwarder.
func NewHealthServer(addr string, feedClient *feed.Client, fwd *forwarder.Forwarder, lg logger.Logger) *httpserver.Server {
	return httpserver.NewServer(addr, healthRoutes(feedClient, fwd), lg)
}

func healthRoutes(feedClient *feed.Client, fwd *forwarder.Forwarder) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", httpserver.NewHealthHandler(map[string]httpserver.Check{
		"websocket": func(*http.Request) (bool, string, interface{}) {
			state := feedClient.State()
			if state != feed.StateConnected {
				return false, "WebSocket connection is " + state.String(), nil
			}
			return true, "WebSocket connection is active", feedClient.Symbols()
		},
		"forwarder": func(*http.Request) (bool, string, interface{}) {
			return true, "Forwarder is running", fwd.Stats()
		},
	}))
	return mux
}
