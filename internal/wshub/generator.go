package wshub

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/supermancell/candle-relay/internal/model"
)

const basePrice = 100.0

// Broadcaster receives generated candles. *Hub satisfies it.
type Broadcaster interface {
	Symbols() []string
	BroadcastCandle(model.Candle)
}

// Generator produces random-walk candles for every subscribed symbol.
type Generator struct {
	interval time.Duration
	clock    clock.Clock
	rng      *rand.Rand

	mu   sync.Mutex
	last map[string]float64
}

func NewGenerator(interval time.Duration, clk clock.Clock, seed uint64) *Generator {
	if clk == nil {
		clk = clock.New()
	}
	return &Generator{
		interval: interval,
		clock:    clk,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		last:     make(map[string]float64),
	}
}

// Next returns the following candle for symbol, timestamped at ts (unix seconds).
// Open and close move by a unit-variance step; high and low wrap them.
func (g *Generator) Next(symbol string, ts time.Time) model.Candle {
	g.mu.Lock()
	defer g.mu.Unlock()

	prev, ok := g.last[symbol]
	if !ok {
		prev = basePrice + g.rng.NormFloat64()*5
	}
	closePrice := prev + g.rng.NormFloat64()
	openPrice := closePrice + g.rng.NormFloat64()*0.2
	high := math.Max(openPrice, closePrice) + g.rng.Float64()*0.3
	low := math.Min(openPrice, closePrice) - g.rng.Float64()*0.3
	g.last[symbol] = closePrice

	return model.Candle{
		Symbol:    symbol,
		Timestamp: float64(ts.Unix()),
		Open:      round2(openPrice),
		High:      round2(high),
		Low:       round2(low),
		Close:     round2(closePrice),
		Volume:    float64(100 + g.rng.IntN(900)),
	}
}

// Run emits one candle per subscribed symbol every interval until ctx is done.
func (g *Generator) Run(ctx context.Context, out Broadcaster) {
	ticker := g.clock.Ticker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, symbol := range out.Symbols() {
				out.BroadcastCandle(g.Next(symbol, now))
			}
		}
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
