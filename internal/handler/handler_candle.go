package handler

import (
	"errors"
	"fmt"

	"github.com/supermancell/candle-relay/internal/common"
	"github.com/supermancell/candle-relay/internal/feed"
	"github.com/supermancell/candle-relay/internal/logger"
)

// NewCandleMessageHandler creates a message handler for the market-data feed.
// Frames without a candle are skipped; malformed frames are returned as errors
// for the feed client to log.
func NewCandleMessageHandler(sink common.CandleSink, log logger.Logger) common.MessageHandler {
	return func(msg []byte) error {
		candle, err := feed.ParseFrame(msg)
		if errors.Is(err, feed.ErrNoCandle) {
			log.Debugf("frame without candle skipped")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to process candle frame: %w", err)
		}

		log.Debugf("received candle: %s %s", candle.Symbol, candle.TimestampString())
		sink.Enqueue(candle)
		return nil
	}
}
