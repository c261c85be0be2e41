package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/supermancell/candle-relay/internal/model"
)

// ErrNoCandle marks a well-formed frame that carries no candle.
var ErrNoCandle = errors.New("frame has no candle")

var codec = sonic.ConfigStd

// Frame represents the inbound WebSocket message structure
type Frame struct {
	Candle json.RawMessage `json:"candle"`
}

type subscribeRequest struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// ParseFrame extracts the candle carried by an inbound frame.
func ParseFrame(msg []byte) (model.Candle, error) {
	var frame Frame
	if err := codec.Unmarshal(msg, &frame); err != nil {
		return model.Candle{}, fmt.Errorf("failed to unmarshal frame: %w", err)
	}

	raw := bytes.TrimSpace(frame.Candle)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return model.Candle{}, ErrNoCandle
	}

	var candle model.Candle
	if err := codec.Unmarshal(raw, &candle); err != nil {
		return model.Candle{}, fmt.Errorf("failed to parse candle: %w", err)
	}

	return candle, nil
}

// SubscribeFrame builds the subscription request sent on every connect.
func SubscribeFrame(symbols []string) ([]byte, error) {
	if symbols == nil {
		symbols = []string{}
	}

	data, err := codec.Marshal(subscribeRequest{
		Action:  "subscribe",
		Symbols: symbols,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal subscribe message: %w", err)
	}
	return data, nil
}
