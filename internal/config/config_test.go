package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Feed.URL != "ws://localhost:8502/realtime" {
		t.Errorf("feed url = %s", cfg.Feed.URL)
	}
	if !reflect.DeepEqual(cfg.Feed.Symbols, []string{"WINJ23", "WDOJ23"}) {
		t.Errorf("symbols = %v", cfg.Feed.Symbols)
	}
	if cfg.Feed.ReconnectDelay != 3*time.Second {
		t.Errorf("reconnect delay = %s", cfg.Feed.ReconnectDelay)
	}
	if cfg.Forwarder.URL != "http://localhost:8501/realtime-cache" {
		t.Errorf("forward url = %s", cfg.Forwarder.URL)
	}
	if cfg.Forwarder.Workers != 8 || cfg.Forwarder.QueueSize != 1024 {
		t.Errorf("forwarder pool = %d/%d", cfg.Forwarder.Workers, cfg.Forwarder.QueueSize)
	}
	if cfg.Cache.Window != 500 || cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.MockFeed.HTTPAddr != "0.0.0.0:8502" || cfg.MockFeed.Interval != time.Second {
		t.Errorf("mock feed = %+v", cfg.MockFeed)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FEED_WS_URL", "wss://feed.example:9000/rt")
	t.Setenv("FEED_SYMBOLS", "PETR4, VALE3,,")
	t.Setenv("FORWARD_URL", "http://localhost:3000/realtime-cache")
	t.Setenv("FORWARD_WORKERS", "2")
	t.Setenv("FORWARD_TIMEOUT", "750ms")
	t.Setenv("CACHE_WINDOW", "not-a-number")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Feed.URL != "wss://feed.example:9000/rt" {
		t.Errorf("feed url = %s", cfg.Feed.URL)
	}
	if !reflect.DeepEqual(cfg.Feed.Symbols, []string{"PETR4", "VALE3"}) {
		t.Errorf("symbols = %v", cfg.Feed.Symbols)
	}
	if cfg.Forwarder.URL != "http://localhost:3000/realtime-cache" {
		t.Errorf("forward url = %s", cfg.Forwarder.URL)
	}
	if cfg.Forwarder.Workers != 2 {
		t.Errorf("workers = %d", cfg.Forwarder.Workers)
	}
	if cfg.Forwarder.Timeout != 750*time.Millisecond {
		t.Errorf("timeout = %s", cfg.Forwarder.Timeout)
	}
	if cfg.Cache.Window != 500 {
		t.Errorf("unparsable window should keep default, got %d", cfg.Cache.Window)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	data := []byte(`
feed:
  url: ws://127.0.0.1:8502/realtime
  symbols: [WINJ23]
  reconnect_delay: 5s
forwarder:
  url: http://127.0.0.1:3000/realtime-cache
  rate_per_second: 50
log_level: debug
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Feed.ReconnectDelay != 5*time.Second {
		t.Errorf("reconnect delay = %s", cfg.Feed.ReconnectDelay)
	}
	if !reflect.DeepEqual(cfg.Feed.Symbols, []string{"WINJ23"}) {
		t.Errorf("symbols = %v", cfg.Feed.Symbols)
	}
	if cfg.Forwarder.RatePerSecond != 50 {
		t.Errorf("rate = %d", cfg.Forwarder.RatePerSecond)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %s", cfg.LogLevel)
	}
}

func TestLoadRejectsBadURLs(t *testing.T) {
	tests := map[string]string{
		"FEED_WS_URL": "http://localhost:8502/realtime",
		"FORWARD_URL": "ws://localhost:8501/realtime-cache",
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(""); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}

func TestLoadProxyWithoutAddr(t *testing.T) {
	t.Setenv("USE_PROXY", "true")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error when proxy has no address")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
