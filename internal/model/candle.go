package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

var ErrInvalidCandle = errors.New("invalid candle")

// Candle is an OHLCV summary for one symbol over one interval.
// Field order matches the body posted to the cache.
type Candle struct {
	Symbol    string  `json:"symbol"`
	Timestamp float64 `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

type wireCandle struct {
	Symbol    *string  `json:"symbol"`
	Timestamp *float64 `json:"timestamp"`
	Open      *float64 `json:"open"`
	High      *float64 `json:"high"`
	Low       *float64 `json:"low"`
	Close     *float64 `json:"close"`
	Volume    *float64 `json:"volume"`
}

// UnmarshalJSON requires every field to be present.
func (c *Candle) UnmarshalJSON(data []byte) error {
	var w wireCandle
	if err := sonic.ConfigStd.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCandle, err)
	}

	var missing []string
	if w.Symbol == nil {
		missing = append(missing, "symbol")
	}
	if w.Timestamp == nil {
		missing = append(missing, "timestamp")
	}
	if w.Open == nil {
		missing = append(missing, "open")
	}
	if w.High == nil {
		missing = append(missing, "high")
	}
	if w.Low == nil {
		missing = append(missing, "low")
	}
	if w.Close == nil {
		missing = append(missing, "close")
	}
	if w.Volume == nil {
		missing = append(missing, "volume")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidCandle, strings.Join(missing, ", "))
	}

	*c = Candle{
		Symbol:    *w.Symbol,
		Timestamp: *w.Timestamp,
		Open:      *w.Open,
		High:      *w.High,
		Low:       *w.Low,
		Close:     *w.Close,
		Volume:    *w.Volume,
	}
	return nil
}

// Validate checks the candle can be keyed and stored.
func (c Candle) Validate() error {
	if strings.TrimSpace(c.Symbol) == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidCandle)
	}
	for name, v := range map[string]float64{
		"timestamp": c.Timestamp,
		"open":      c.Open,
		"high":      c.High,
		"low":       c.Low,
		"close":     c.Close,
		"volume":    c.Volume,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidCandle, name)
		}
	}
	return nil
}

// TimestampString formats the timestamp without an exponent.
func (c Candle) TimestampString() string {
	return strconv.FormatFloat(c.Timestamp, 'f', -1, 64)
}
