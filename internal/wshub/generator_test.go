package wshub

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/supermancell/candle-relay/internal/model"
)

type recorder struct {
	mu      sync.Mutex
	symbols []string
	candles chan model.Candle
}

func (r *recorder) Symbols() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.symbols
}

func (r *recorder) BroadcastCandle(c model.Candle) {
	r.candles <- c
}

func TestGeneratorNextIsWellFormed(t *testing.T) {
	g := NewGenerator(time.Second, clock.NewMock(), 42)
	start := time.Unix(1_680_000_000, 0)

	for i := 0; i < 200; i++ {
		c := g.Next("WINJ23", start.Add(time.Duration(i)*time.Minute))
		if err := c.Validate(); err != nil {
			t.Fatalf("candle %d invalid: %v", i, err)
		}
		if c.High < math.Max(c.Open, c.Close) || c.Low > math.Min(c.Open, c.Close) {
			t.Fatalf("candle %d out of range: %+v", i, c)
		}
		if c.Timestamp != float64(start.Unix()+int64(i)*60) {
			t.Fatalf("candle %d timestamp = %v", i, c.Timestamp)
		}
		if c.Volume < 100 || c.Volume >= 1000 {
			t.Fatalf("candle %d volume = %v", i, c.Volume)
		}
	}
}

func TestGeneratorIsDeterministicPerSeed(t *testing.T) {
	ts := time.Unix(1000, 0)
	a := NewGenerator(time.Second, nil, 7)
	b := NewGenerator(time.Second, nil, 7)

	for i := 0; i < 10; i++ {
		if ca, cb := a.Next("WDOJ23", ts), b.Next("WDOJ23", ts); ca != cb {
			t.Fatalf("step %d: %+v != %+v", i, ca, cb)
		}
	}
}

func TestGeneratorRunTicksSubscribedSymbols(t *testing.T) {
	mock := clock.NewMock()
	g := NewGenerator(time.Second, mock, 1)
	out := &recorder{symbols: []string{"WINJ23", "WDOJ23"}, candles: make(chan model.Candle, 8)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		g.Run(ctx, out)
		close(done)
	}()

	// give Run time to register its ticker with the mock
	time.Sleep(10 * time.Millisecond)
	mock.Add(time.Second)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case c := <-out.candles:
			seen[c.Symbol] = true
			if c.Timestamp != float64(mock.Now().Unix()) {
				t.Errorf("timestamp = %v, want %v", c.Timestamp, mock.Now().Unix())
			}
		case <-time.After(2 * time.Second):
			t.Fatal("no candle after tick")
		}
	}
	if !seen["WINJ23"] || !seen["WDOJ23"] {
		t.Fatalf("symbols seen = %v", seen)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
