package cache

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/supermancell/candle-relay/internal/logger"
	"github.com/supermancell/candle-relay/internal/model"
	"github.com/supermancell/candle-relay/internal/redisclient"
)

// memoryStore keeps candles in memory with the same ordering rules as Redis.
type memoryStore struct {
	mu      sync.Mutex
	series  map[string][]model.Candle
	failPut bool
	down    bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{series: make(map[string][]model.Candle)}
}

func (s *memoryStore) StoreCandle(_ context.Context, c model.Candle) error {
	if s.failPut {
		return errors.New("redis: connection refused")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.series[c.Symbol]
	for i := range list {
		if list[i].Timestamp == c.Timestamp {
			list[i] = c
			return nil
		}
	}
	list = append(list, c)
	sort.Slice(list, func(i, j int) bool { return list[i].Timestamp < list[j].Timestamp })
	s.series[c.Symbol] = list
	return nil
}

func (s *memoryStore) LatestCandle(_ context.Context, symbol string) (model.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.series[symbol]
	if len(list) == 0 {
		return model.Candle{}, redisclient.ErrNotFound
	}
	return list[len(list)-1], nil
}

func (s *memoryStore) RecentCandles(_ context.Context, symbol string, limit int) ([]model.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.series[symbol]
	if len(list) == 0 {
		return nil, redisclient.ErrNotFound
	}
	if len(list) > limit {
		list = list[len(list)-limit:]
	}
	return append([]model.Candle(nil), list...), nil
}

func (s *memoryStore) Ping(context.Context) error {
	if s.down {
		return errors.New("redis: connection refused")
	}
	return nil
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestStoreCandle(t *testing.T) {
	store := newMemoryStore()
	h := NewHandler(store, logger.NewNop()).Routes()

	w := do(t, h, http.MethodPost, "/realtime-cache",
		`{"symbol":"WINJ23","timestamp":1000,"open":1,"high":2,"low":0.5,"close":1.5,"volume":100}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}

	latest, err := store.LatestCandle(context.Background(), "WINJ23")
	if err != nil {
		t.Fatalf("candle not stored: %v", err)
	}
	want := model.Candle{Symbol: "WINJ23", Timestamp: 1000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100}
	if latest != want {
		t.Fatalf("stored %+v, want %+v", latest, want)
	}
}

func TestStoreCandleRejectsBadBodies(t *testing.T) {
	bodies := map[string]string{
		"not json":       `not json`,
		"missing fields": `{"symbol":"WINJ23","timestamp":1000}`,
		"empty symbol":   `{"symbol":"","timestamp":1000,"open":1,"high":2,"low":0.5,"close":1.5,"volume":100}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			store := newMemoryStore()
			w := do(t, NewHandler(store, logger.NewNop()).Routes(), http.MethodPost, "/realtime-cache", body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", w.Code)
			}
			if len(store.series) != 0 {
				t.Fatal("bad body was stored")
			}
		})
	}
}

func TestStoreCandleRejectsOversizedBody(t *testing.T) {
	store := newMemoryStore()
	body := `{"symbol":"WINJ23","pad":"` + strings.Repeat("x", maxBodyBytes) + `"}`

	w := do(t, NewHandler(store, logger.NewNop()).Routes(), http.MethodPost, "/realtime-cache", body)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", w.Code)
	}
	if len(store.series) != 0 {
		t.Fatal("oversized body was stored")
	}
}

func TestStoreCandleStoreFailure(t *testing.T) {
	store := newMemoryStore()
	store.failPut = true

	w := do(t, NewHandler(store, logger.NewNop()).Routes(), http.MethodPost, "/realtime-cache",
		`{"symbol":"WINJ23","timestamp":1000,"open":1,"high":2,"low":0.5,"close":1.5,"volume":100}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestRecentCandles(t *testing.T) {
	store := newMemoryStore()
	for ts := 1; ts <= 40; ts++ {
		store.StoreCandle(context.Background(), model.Candle{Symbol: "WDOJ23", Timestamp: float64(ts)})
	}
	h := NewHandler(store, logger.NewNop()).Routes()

	tests := []struct {
		target    string
		wantCount int
		wantFirst float64
	}{
		{target: "/realtime/WDOJ23", wantCount: 30, wantFirst: 11},
		{target: "/realtime/WDOJ23?limit=5", wantCount: 5, wantFirst: 36},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w := do(t, h, http.MethodGet, tt.target, "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}

			var resp struct {
				Data []model.Candle `json:"data"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(resp.Data) != tt.wantCount {
				t.Fatalf("got %d candles, want %d", len(resp.Data), tt.wantCount)
			}
			if resp.Data[0].Timestamp != tt.wantFirst || resp.Data[len(resp.Data)-1].Timestamp != 40 {
				t.Fatalf("window = %v..%v", resp.Data[0].Timestamp, resp.Data[len(resp.Data)-1].Timestamp)
			}
		})
	}
}

func TestLookupErrors(t *testing.T) {
	store := newMemoryStore()
	store.StoreCandle(context.Background(), model.Candle{Symbol: "WINJ23", Timestamp: 1})
	h := NewHandler(store, logger.NewNop()).Routes()

	if w := do(t, h, http.MethodGet, "/realtime/PETR4", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown symbol status = %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/realtime/PETR4/latest", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown latest status = %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/realtime/WINJ23?limit=-1", ""); w.Code != http.StatusBadRequest {
		t.Errorf("negative limit status = %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/realtime/WINJ23/latest", ""); w.Code != http.StatusOK {
		t.Errorf("latest status = %d", w.Code)
	}
}

func TestHealthReflectsRedis(t *testing.T) {
	store := newMemoryStore()
	h := NewHandler(store, logger.NewNop()).Routes()

	if w := do(t, h, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Fatalf("healthy status = %d", w.Code)
	}

	store.down = true
	if w := do(t, h, http.MethodGet, "/health", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy status = %d", w.Code)
	}
}
