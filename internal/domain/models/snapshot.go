package models

import (
	"math"
	"time"
)

// IndicatorSnapshot is the per-cycle indicator state of one instrument.
type IndicatorSnapshot struct {
	Instrument       string    `json:"instrument"`
	LastPrice        float64   `json:"last_price"`
	RSI              float64   `json:"rsi"`
	BollingerHigh    float64   `json:"bollinger_high"`
	BollingerLow     float64   `json:"bollinger_low"`
	EMA              float64   `json:"ema"`
	BodySize         float64   `json:"body_size"`
	UpperWick        float64   `json:"upper_wick"`
	LowerWick        float64   `json:"lower_wick"`
	AvgBody          float64   `json:"avg_body"`
	ConsecutiveGreen int       `json:"consecutive_green"`
	ConsecutiveRed   int       `json:"consecutive_red"`
	ComputedAt       time.Time `json:"computed_at"`
}

// Finite reports whether every float field is a real number.
func (s IndicatorSnapshot) Finite() bool {
	for _, v := range []float64{s.LastPrice, s.RSI, s.BollingerHigh, s.BollingerLow, s.EMA, s.BodySize, s.UpperWick, s.LowerWick, s.AvgBody} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
