package repository

import (
	"fmt"
	"time"
)

// Timeframe is a candle resolution in seconds.
type Timeframe int

const (
	TF5s  Timeframe = 5
	TF10s Timeframe = 10
	TF15s Timeframe = 15
	TF30s Timeframe = 30
	TF1m  Timeframe = 60
	TF2m  Timeframe = 120
	TF5m  Timeframe = 300
	TF15m Timeframe = 900
	TF30m Timeframe = 1800
	TF1h  Timeframe = 3600
)

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TF5s, TF10s, TF15s, TF30s, TF1m, TF2m, TF5m, TF15m, TF30m, TF1h:
		return true
	default:
		return false
	}
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TF1m }

// NormalizeTimeframe converts raw seconds to a valid timeframe (or default).
func NormalizeTimeframe(seconds int) Timeframe {
	tf := Timeframe(seconds)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// Duration returns the bar length.
func (tf Timeframe) Duration() time.Duration { return time.Duration(tf) * time.Second }

func (tf Timeframe) String() string {
	d := tf.Duration()
	switch {
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", int(d/time.Hour))
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", int(d/time.Minute))
	default:
		return fmt.Sprintf("%ds", int(d/time.Second))
	}
}
