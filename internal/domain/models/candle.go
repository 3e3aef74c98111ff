package models

import (
	"sort"
	"time"
)

// Candle represents one OHLC bar for a fixed interval.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// IsGreen reports close > open.
func (c Candle) IsGreen() bool { return c.Close > c.Open }

// IsRed reports close < open.
func (c Candle) IsRed() bool { return c.Close < c.Open }

// CandleWindow is a time-ascending run of bars for one instrument.
type CandleWindow struct {
	Instrument string
	Nominal    int
	Candles    []Candle
}

// NewCandleWindow sorts bars ascending, drops duplicate timestamps (last one wins)
// and drops bars with non-positive prices.
func NewCandleWindow(instrument string, nominal int, bars []Candle) CandleWindow {
	clean := make([]Candle, 0, len(bars))
	for _, b := range bars {
		if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
			continue
		}
		clean = append(clean, b)
	}
	sort.SliceStable(clean, func(i, j int) bool { return clean[i].Time.Before(clean[j].Time) })

	out := clean[:0]
	for _, b := range clean {
		if n := len(out); n > 0 && out[n-1].Time.Equal(b.Time) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return CandleWindow{Instrument: instrument, Nominal: nominal, Candles: out}
}

// Len returns the number of usable bars.
func (w CandleWindow) Len() int { return len(w.Candles) }

// Complete reports whether the window holds at least ratio*Nominal bars.
func (w CandleWindow) Complete(ratio float64) bool {
	if w.Nominal <= 0 {
		return len(w.Candles) > 0
	}
	need := int(float64(w.Nominal) * ratio)
	if need < 1 {
		need = 1
	}
	return len(w.Candles) >= need
}

// Closes returns the close series.
func (w CandleWindow) Closes() []float64 {
	out := make([]float64, len(w.Candles))
	for i, c := range w.Candles {
		out[i] = c.Close
	}
	return out
}

// Last returns the most recent bar.
func (w CandleWindow) Last() (Candle, bool) {
	if len(w.Candles) == 0 {
		return Candle{}, false
	}
	return w.Candles[len(w.Candles)-1], true
}
