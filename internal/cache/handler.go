package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"

	httpserver "github.com/supermancell/candle-relay/internal/http"
	"github.com/supermancell/candle-relay/internal/logger"
	"github.com/supermancell/candle-relay/internal/model"
	"github.com/supermancell/candle-relay/internal/redisclient"
)

const (
	defaultLimit = 30
	maxLimit     = 1000
	maxBodyBytes = 1 << 16
)

// Store is the candle storage behind the cache API. *redisclient.Client implements it.
type Store interface {
	StoreCandle(ctx context.Context, candle model.Candle) error
	LatestCandle(ctx context.Context, symbol string) (model.Candle, error)
	RecentCandles(ctx context.Context, symbol string, limit int) ([]model.Candle, error)
	Ping(ctx context.Context) error
}

var _ Store = (*redisclient.Client)(nil)

type response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type Handler struct {
	store  Store
	logger logger.Logger
}

func NewHandler(store Store, log logger.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: log.With("component", "cache"),
	}
}

// Routes returns the cache API:
//
//	POST /realtime-cache          store one candle
//	GET  /realtime/{symbol}       newest candles, oldest first (?limit=N)
//	GET  /realtime/{symbol}/latest
//	GET  /health
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /realtime-cache", h.handleStore)
	mux.HandleFunc("GET /realtime/{symbol}", h.handleRecent)
	mux.HandleFunc("GET /realtime/{symbol}/latest", h.handleLatest)
	mux.HandleFunc("/health", httpserver.NewHealthHandler(map[string]httpserver.Check{
		"redis": h.checkRedis,
	}))
	return mux
}

func (h *Handler) handleStore(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, response{Code: 413, Message: "body too large"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{Code: 400, Message: "can't read body"})
		return
	}

	var candle model.Candle
	if err := sonic.ConfigStd.Unmarshal(body, &candle); err != nil {
		h.logger.Warnf("%s: rejected candle body", err)
		writeJSON(w, http.StatusBadRequest, response{Code: 400, Message: err.Error()})
		return
	}
	if err := candle.Validate(); err != nil {
		h.logger.Warnf("%s: rejected candle", err)
		writeJSON(w, http.StatusBadRequest, response{Code: 400, Message: err.Error()})
		return
	}

	if err := h.store.StoreCandle(r.Context(), candle); err != nil {
		h.logger.Errorf("%s: can't cache candle", err)
		writeJSON(w, http.StatusInternalServerError, response{Code: 500, Message: "can't cache candle"})
		return
	}

	h.logger.Debugf("candle cached: %s %s", candle.Symbol, candle.TimestampString())
	writeJSON(w, http.StatusOK, response{Code: 200, Message: "success"})
}

func (h *Handler) handleRecent(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")

	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, response{Code: 400, Message: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxLimit)
	}

	candles, err := h.store.RecentCandles(r.Context(), symbol, limit)
	if err != nil {
		h.writeLookupError(w, symbol, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Code: 200, Message: "success", Data: candles})
}

func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")

	candle, err := h.store.LatestCandle(r.Context(), symbol)
	if err != nil {
		h.writeLookupError(w, symbol, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Code: 200, Message: "success", Data: candle})
}

func (h *Handler) writeLookupError(w http.ResponseWriter, symbol string, err error) {
	if errors.Is(err, redisclient.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, response{Code: 404, Message: "symbol not found"})
		return
	}
	h.logger.Errorf("%s: can't read candles for %s", err, symbol)
	writeJSON(w, http.StatusInternalServerError, response{Code: 500, Message: "can't read candles"})
}

func (h *Handler) checkRedis(r *http.Request) (bool, string, interface{}) {
	if err := h.store.Ping(r.Context()); err != nil {
		return false, "Redis connection failed or closed", nil
	}
	return true, "Redis connection is active", nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
