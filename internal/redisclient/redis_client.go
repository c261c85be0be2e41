package redisclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/supermancell/candle-relay/internal/config"
	"github.com/supermancell/candle-relay/internal/model"
)

// Redis keys
const (
	LatestCandleKey = "candle:latest:%s" // newest candle per symbol
	CandleSeriesKey = "candle:series:%s" // sorted set scored by timestamp
)

var ErrNotFound = errors.New("no cached candles")

var codec = sonic.ConfigStd

// Client wraps the Redis operations of the candle cache
type Client struct {
	rdb    *redis.Client
	window int
	ttl    time.Duration
}

// NewClient creates a new Redis client and checks the connection
func NewClient(ctx context.Context, cfg config.RedisConfig, cacheCfg config.CacheConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{
		rdb:    rdb,
		window: cacheCfg.Window,
		ttl:    cacheCfg.TTL,
	}, nil
}

// setLatestScript replaces the latest candle unless the stored one is newer.
// KEYS[1] latest key, ARGV[1] candle JSON, ARGV[2] timestamp, ARGV[3] TTL in ms.
var setLatestScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if cur then
	local ok, stored = pcall(cjson.decode, cur)
	if not ok or type(stored) ~= "table" or tonumber(stored.timestamp) == nil then
		return redis.error_reply("corrupt latest candle")
	end
	if tonumber(stored.timestamp) > tonumber(ARGV[2]) then
		return 0
	end
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
return 1
`)

// StoreCandle adds the candle to the series, replacing any candle with the
// same timestamp and trimming the series to the cache window, then makes it
// the symbol's latest unless a newer one is already stored.
func (c *Client) StoreCandle(ctx context.Context, candle model.Candle) error {
	data, err := codec.Marshal(candle)
	if err != nil {
		return fmt.Errorf("failed to marshal candle: %w", err)
	}

	latestKey := fmt.Sprintf(LatestCandleKey, candle.Symbol)
	seriesKey := fmt.Sprintf(CandleSeriesKey, candle.Symbol)
	score := strconv.FormatFloat(candle.Timestamp, 'f', -1, 64)

	pipe := c.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, seriesKey, score, score)
	pipe.ZAdd(ctx, seriesKey, redis.Z{Score: candle.Timestamp, Member: data})
	pipe.ZRemRangeByRank(ctx, seriesKey, 0, -int64(c.window)-1)
	pipe.Expire(ctx, seriesKey, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store candle %s: %w", candle.Symbol, err)
	}

	err = setLatestScript.Run(ctx, c.rdb, []string{latestKey}, data, score, c.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("failed to set latest candle %s: %w", candle.Symbol, err)
	}
	return nil
}

// LatestCandle returns the newest candle stored for symbol.
func (c *Client) LatestCandle(ctx context.Context, symbol string) (model.Candle, error) {
	data, err := c.rdb.Get(ctx, fmt.Sprintf(LatestCandleKey, symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Candle{}, ErrNotFound
	}
	if err != nil {
		return model.Candle{}, fmt.Errorf("failed to get latest candle %s: %w", symbol, err)
	}

	var candle model.Candle
	if err := codec.Unmarshal(data, &candle); err != nil {
		return model.Candle{}, fmt.Errorf("failed to unmarshal candle: %w", err)
	}
	return candle, nil
}

// RecentCandles returns up to limit newest candles for symbol, oldest first.
func (c *Client) RecentCandles(ctx context.Context, symbol string, limit int) ([]model.Candle, error) {
	members, err := c.rdb.ZRange(ctx, fmt.Sprintf(CandleSeriesKey, symbol), -int64(limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get candles %s: %w", symbol, err)
	}
	if len(members) == 0 {
		return nil, ErrNotFound
	}

	candles := make([]model.Candle, 0, len(members))
	for _, m := range members {
		var candle model.Candle
		if err := codec.UnmarshalFromString(m, &candle); err != nil {
			return nil, fmt.Errorf("failed to unmarshal candle: %w", err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}
