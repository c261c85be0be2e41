package common

import "github.com/supermancell/candle-relay/internal/model"

// MessageHandler processes incoming messages
type MessageHandler func(msg []byte) error

// CandleSink accepts parsed candles without blocking the caller.
type CandleSink interface {
	Enqueue(candle model.Candle) bool
}
