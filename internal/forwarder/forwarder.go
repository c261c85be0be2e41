package forwarder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/ratelimit"
	"resty.dev/v3"

	"github.com/supermancell/candle-relay/internal/config"
	"github.com/supermancell/candle-relay/internal/logger"
	"github.com/supermancell/candle-relay/internal/model"
)

const defaultDrainTimeout = 5 * time.Second

var (
	ErrQueueFull = errors.New("forward queue is full")
	ErrStopped   = errors.New("forwarder stopped")
	ErrStatus    = errors.New("unexpected response status")
)

// Result is the outcome of forwarding one candle.
type Result struct {
	Candle     model.Candle
	StatusCode int
	Duration   time.Duration
	Err        error
}

func (r Result) OK() bool {
	return r.Err == nil
}

type Stats struct {
	Sent    uint64 `json:"sent"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
	Queued  int    `json:"queued"`
}

// Forwarder posts candles to the cache endpoint from a bounded queue
// drained by a fixed pool of workers. Failed posts are reported and
// discarded.
type Forwarder struct {
	c        *resty.Client
	url      string
	workers  int
	queue    chan model.Candle
	limiter  ratelimit.Limiter
	onResult func(Result)

	drainTimeout time.Duration
	cancel       context.CancelFunc

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64

	logger logger.Logger
}

type Option func(*Forwarder)

// WithResultHook registers fn to observe every forward attempt.
// fn is called from worker goroutines and from Enqueue.
func WithResultHook(fn func(Result)) Option {
	return func(f *Forwarder) {
		f.onResult = fn
	}
}

func New(cfg config.ForwarderConfig, log logger.Logger, opts ...Option) *Forwarder {
	log = log.With("component", "forwarder")

	client := resty.New().
		SetLogger(log).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")

	limiter := ratelimit.NewUnlimited()
	if cfg.RatePerSecond > 0 {
		limiter = ratelimit.New(cfg.RatePerSecond)
	}

	drainTimeout := cfg.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = defaultDrainTimeout
	}

	f := &Forwarder{
		c:       client,
		url:     cfg.URL,
		workers: cfg.Workers,
		queue:   make(chan model.Candle, cfg.QueueSize),
		limiter: limiter,
		logger:  log,

		drainTimeout: drainTimeout,
		cancel:       func() {},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Start launches the worker pool. Requests use a child of ctx that Stop
// cancels once the drain timeout passes.
func (f *Forwarder) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.cancel = cancel
	f.mu.Unlock()

	for i := 0; i < f.workers; i++ {
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			for candle := range f.queue {
				if err := ctx.Err(); err != nil {
					f.drop(candle, err)
					continue
				}
				f.limiter.Take()
				f.Send(ctx, candle)
			}
		}()
	}
	f.logger.Infof("forwarder started: %d workers, queue %d, target %s", f.workers, cap(f.queue), f.url)
}

// Enqueue hands a candle to the workers without blocking. It returns false
// when the candle was dropped.
func (f *Forwarder) Enqueue(candle model.Candle) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		f.drop(candle, ErrStopped)
		return false
	}

	select {
	case f.queue <- candle:
		return true
	default:
		f.drop(candle, ErrQueueFull)
		return false
	}
}

func (f *Forwarder) drop(candle model.Candle, err error) {
	f.dropped.Add(1)
	f.logger.Warnf("%s: candle dropped %s %s", err, candle.Symbol, candle.TimestampString())
	f.report(Result{Candle: candle, Err: err})
}

// Send posts one candle and reports the result. Non-2xx responses are failures.
func (f *Forwarder) Send(ctx context.Context, candle model.Candle) Result {
	start := time.Now()
	res := Result{Candle: candle}

	resp, err := f.c.R().
		SetContext(ctx).
		SetBody(candle).
		Post(f.url)
	res.Duration = time.Since(start)

	switch {
	case err != nil:
		res.Err = fmt.Errorf("%w: can't post candle", err)
	default:
		res.StatusCode = resp.StatusCode()
		if !resp.IsSuccess() {
			res.Err = fmt.Errorf("%w: %s", ErrStatus, resp.Status())
		}
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	if res.Err != nil {
		f.failed.Add(1)
		f.logger.Errorf("%s: can't send candle %s %s", res.Err, candle.Symbol, candle.TimestampString())
	} else {
		f.sent.Add(1)
		f.logger.Infof("candle sent: %s %s", candle.Symbol, candle.TimestampString())
	}

	f.report(res)
	return res
}

func (f *Forwarder) report(res Result) {
	if f.onResult != nil {
		f.onResult(res)
	}
}

// Stop closes the queue and waits for the workers to drain it. When the
// drain timeout passes first, in-flight requests are cancelled and the rest
// of the queue is dropped. Enqueue after Stop drops the candle.
func (f *Forwarder) Stop() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	close(f.queue)
	cancel := f.cancel
	f.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(drained)
	}()

	timer := time.NewTimer(f.drainTimeout)
	defer timer.Stop()

	select {
	case <-drained:
	case <-timer.C:
		f.logger.Warnf("forward queue not drained in %s, cancelling %d pending candles", f.drainTimeout, len(f.queue))
		cancel()
		<-drained
	}
	cancel()
	f.logger.Infof("forwarder stopped: sent=%d failed=%d dropped=%d", f.sent.Load(), f.failed.Load(), f.dropped.Load())
}

func (f *Forwarder) Stats() Stats {
	return Stats{
		Sent:    f.sent.Load(),
		Failed:  f.failed.Load(),
		Dropped: f.dropped.Load(),
		Queued:  len(f.queue),
	}
}
