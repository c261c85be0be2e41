package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FeedConfig holds the upstream market-data WebSocket settings.
type FeedConfig struct {
	URL              string        `yaml:"url"`
	Symbols          []string      `yaml:"symbols"`
	ReconnectDelay   time.Duration `yaml:"reconnect_delay"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	UseProxy         bool          `yaml:"use_proxy"`
	ProxyAddr        string        `yaml:"proxy_addr"` // SOCKS5 host:port
}

// ForwarderConfig holds the downstream cache endpoint and outbound queue settings.
type ForwarderConfig struct {
	URL           string        `yaml:"url"`
	Workers       int           `yaml:"workers"`
	QueueSize     int           `yaml:"queue_size"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond int           `yaml:"rate_per_second"` // 0 means unlimited
	DrainTimeout  time.Duration `yaml:"drain_timeout"`   // pending candles are dropped after it on shutdown
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// CacheConfig holds the cache service settings.
type CacheConfig struct {
	HTTPAddr string        `yaml:"http_addr"`
	Window   int           `yaml:"window"` // candles kept per symbol
	TTL      time.Duration `yaml:"ttl"`
}

// MockFeedConfig holds the settings of the local development feed.
type MockFeedConfig struct {
	HTTPAddr string        `yaml:"http_addr"`
	Interval time.Duration `yaml:"interval"` // one candle per symbol per interval
}

// AppConfig aggregates all runtime configuration needed by the relay and the cache service.
type AppConfig struct {
	Feed       FeedConfig      `yaml:"feed"`
	Forwarder  ForwarderConfig `yaml:"forwarder"`
	Redis      RedisConfig     `yaml:"redis"`
	Cache      CacheConfig     `yaml:"cache"`
	MockFeed   MockFeedConfig  `yaml:"mock_feed"`
	HealthAddr string          `yaml:"health_addr"`
	LogLevel   string          `yaml:"log_level"`
}

const (
	_feedURLDefault          = "ws://localhost:8502/realtime"
	_reconnectDelayDefault   = 3 * time.Second
	_handshakeTimeoutDefault = 10 * time.Second
	_forwardURLDefault       = "http://localhost:8501/realtime-cache"
	_workersDefault          = 8
	_queueSizeDefault        = 1024
	_forwardTimeoutDefault   = 5 * time.Second
	_drainTimeoutDefault     = 5 * time.Second
	_redisAddrDefault        = "localhost:6379"
	_cacheHTTPAddrDefault    = "0.0.0.0:8501"
	_cacheWindowDefault      = 500
	_cacheTTLDefault         = 24 * time.Hour
	_mockFeedAddrDefault     = "0.0.0.0:8502"
	_mockFeedIntervalDefault = time.Second
	_healthAddrDefault       = "0.0.0.0:8090"
	_logLevelDefault         = "info"
)

var _symbolsDefault = []string{"WINJ23", "WDOJ23"}

// LoadDotEnv loads .env files into the environment without overriding variables already set.
func LoadDotEnv(files ...string) error {
	return godotenv.Load(files...)
}

// Load reads the optional YAML file at path, applies environment overrides
// and fills defaults.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	if path != "" {
		input, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("%w: can't read file", err)
		}
		if err := yaml.Unmarshal(input, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: can't unmarshal config", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.ValidateAndSetup(); err != nil {
		return cfg, fmt.Errorf("%w: can't setup cfg", err)
	}

	return cfg, nil
}

func applyEnv(cfg *AppConfig) {
	cfg.Feed.URL = getenvWithDefault("FEED_WS_URL", cfg.Feed.URL)
	cfg.Feed.Symbols = getenvListWithDefault("FEED_SYMBOLS", cfg.Feed.Symbols)
	cfg.Feed.ReconnectDelay = getenvDurationWithDefault("FEED_RECONNECT_DELAY", cfg.Feed.ReconnectDelay)
	cfg.Feed.UseProxy = getenvBoolWithDefault("USE_PROXY", cfg.Feed.UseProxy)
	cfg.Feed.ProxyAddr = getenvWithDefault("PROXY_ADDR", cfg.Feed.ProxyAddr)

	cfg.Forwarder.URL = getenvWithDefault("FORWARD_URL", cfg.Forwarder.URL)
	cfg.Forwarder.Workers = getenvIntWithDefault("FORWARD_WORKERS", cfg.Forwarder.Workers)
	cfg.Forwarder.QueueSize = getenvIntWithDefault("FORWARD_QUEUE_SIZE", cfg.Forwarder.QueueSize)
	cfg.Forwarder.Timeout = getenvDurationWithDefault("FORWARD_TIMEOUT", cfg.Forwarder.Timeout)
	cfg.Forwarder.RatePerSecond = getenvIntWithDefault("FORWARD_RATE_PER_SECOND", cfg.Forwarder.RatePerSecond)
	cfg.Forwarder.DrainTimeout = getenvDurationWithDefault("FORWARD_DRAIN_TIMEOUT", cfg.Forwarder.DrainTimeout)

	cfg.Redis.Addr = getenvWithDefault("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getenvWithDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getenvIntWithDefault("REDIS_DB", cfg.Redis.DB)

	cfg.Cache.HTTPAddr = getenvWithDefault("CACHE_HTTP_ADDR", cfg.Cache.HTTPAddr)
	cfg.Cache.Window = getenvIntWithDefault("CACHE_WINDOW", cfg.Cache.Window)
	cfg.Cache.TTL = getenvDurationWithDefault("CACHE_TTL", cfg.Cache.TTL)

	cfg.MockFeed.HTTPAddr = getenvWithDefault("MOCK_FEED_ADDR", cfg.MockFeed.HTTPAddr)
	cfg.MockFeed.Interval = getenvDurationWithDefault("MOCK_FEED_INTERVAL", cfg.MockFeed.Interval)

	cfg.HealthAddr = getenvWithDefault("HEALTH_HTTP_ADDR", cfg.HealthAddr)
	cfg.LogLevel = getenvWithDefault("LOG_LEVEL", cfg.LogLevel)
}

func (c *FeedConfig) Setup() error {
	if c.URL == "" {
		c.URL = _feedURLDefault
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("%w: bad feed url", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("feed url must be ws:// or wss://, got %q", c.URL)
	}

	if len(c.Symbols) == 0 {
		c.Symbols = append([]string(nil), _symbolsDefault...)
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = _reconnectDelayDefault
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = _handshakeTimeoutDefault
	}
	if c.UseProxy && c.ProxyAddr == "" {
		return fmt.Errorf("proxy enabled without proxy address")
	}

	return nil
}

func (c *ForwarderConfig) Setup() error {
	if c.URL == "" {
		c.URL = _forwardURLDefault
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("%w: bad forward url", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("forward url must be http:// or https://, got %q", c.URL)
	}

	if c.Workers <= 0 {
		c.Workers = _workersDefault
	}
	if c.QueueSize <= 0 {
		c.QueueSize = _queueSizeDefault
	}
	if c.Timeout <= 0 {
		c.Timeout = _forwardTimeoutDefault
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = _drainTimeoutDefault
	}
	if c.RatePerSecond < 0 {
		return fmt.Errorf("negative forward rate %d", c.RatePerSecond)
	}

	return nil
}

func (c *CacheConfig) Setup() {
	if c.HTTPAddr == "" {
		c.HTTPAddr = _cacheHTTPAddrDefault
	}
	if c.Window <= 0 {
		c.Window = _cacheWindowDefault
	}
	if c.TTL <= 0 {
		c.TTL = _cacheTTLDefault
	}
}

func (c *AppConfig) ValidateAndSetup() error {
	if err := c.Feed.Setup(); err != nil {
		return fmt.Errorf("%w: can't setup feed", err)
	}
	if err := c.Forwarder.Setup(); err != nil {
		return fmt.Errorf("%w: can't setup forwarder", err)
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = _redisAddrDefault
	}
	c.Cache.Setup()
	if c.MockFeed.HTTPAddr == "" {
		c.MockFeed.HTTPAddr = _mockFeedAddrDefault
	}
	if c.MockFeed.Interval <= 0 {
		c.MockFeed.Interval = _mockFeedIntervalDefault
	}
	if c.HealthAddr == "" {
		c.HealthAddr = _healthAddrDefault
	}
	if c.LogLevel == "" {
		c.LogLevel = _logLevelDefault
	}

	return nil
}

func getenvWithDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvIntWithDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvBoolWithDefault(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDurationWithDefault(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getenvListWithDefault(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	var list []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	if len(list) == 0 {
		return def
	}
	return list
}
