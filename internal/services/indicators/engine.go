package indicators

import (
	"fmt"
	"math"
	"time"

	"TradeSentinel/internal/domain/models"

	"github.com/markcheno/go-talib"
)

// Params configures indicator lookbacks.
type Params struct {
	RSIPeriod       int
	BollingerPeriod int
	BollingerDev    float64
	EMAPeriod       int
	AvgBodyPeriod   int
}

// DefaultParams returns RSI(14), BB(14, 2), EMA(50) and a 10-bar body average.
func DefaultParams() Params {
	return Params{
		RSIPeriod:       14,
		BollingerPeriod: 14,
		BollingerDev:    2,
		EMAPeriod:       50,
		AvgBodyPeriod:   10,
	}
}

// MinBars is the shortest window every indicator can be computed on.
func (p Params) MinBars() int {
	n := p.RSIPeriod + 1
	for _, v := range []int{p.BollingerPeriod, p.EMAPeriod, p.AvgBodyPeriod} {
		if v > n {
			n = v
		}
	}
	return n
}

// Engine turns a candle window into an indicator snapshot.
type Engine struct {
	params Params
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the snapshot timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(p Params, opts ...Option) *Engine {
	e := &Engine{params: p, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Params() Params { return e.params }

// Compute returns models.ErrIndicatorInsufficient when the window is too short
// or any indicator comes out as a non-number.
func (e *Engine) Compute(w models.CandleWindow) (models.IndicatorSnapshot, error) {
	p := e.params
	if w.Len() < p.MinBars() {
		return models.IndicatorSnapshot{}, fmt.Errorf("%s: %d bars, need %d: %w",
			w.Instrument, w.Len(), p.MinBars(), models.ErrIndicatorInsufficient)
	}

	closes := w.Closes()
	rsi := last(talib.Rsi(closes, p.RSIPeriod))
	upper, _, lower := talib.BBands(closes, p.BollingerPeriod, p.BollingerDev, p.BollingerDev, talib.SMA)
	ema := last(talib.Ema(closes, p.EMAPeriod))
	if !valid(rsi) || !valid(ema) {
		return models.IndicatorSnapshot{}, fmt.Errorf("%s: rsi=%v ema=%v: %w",
			w.Instrument, rsi, ema, models.ErrIndicatorInsufficient)
	}

	bodies := make([]float64, w.Len())
	for i, c := range w.Candles {
		bodies[i] = Body(c)
	}
	avgBody := last(talib.Sma(bodies, p.AvgBodyPeriod))

	bar, _ := w.Last()
	green, red := Streaks(w.Candles)
	return models.IndicatorSnapshot{
		Instrument:       w.Instrument,
		LastPrice:        bar.Close,
		RSI:              rsi,
		BollingerHigh:    last(upper),
		BollingerLow:     last(lower),
		EMA:              ema,
		BodySize:         Body(bar),
		UpperWick:        UpperWick(bar),
		LowerWick:        LowerWick(bar),
		AvgBody:          avgBody,
		ConsecutiveGreen: green,
		ConsecutiveRed:   red,
		ComputedAt:       e.now().UTC(),
	}, nil
}

// Body is |close - open|.
func Body(c models.Candle) float64 { return math.Abs(c.Close - c.Open) }

// UpperWick is high - max(open, close).
func UpperWick(c models.Candle) float64 { return c.High - math.Max(c.Open, c.Close) }

// LowerWick is min(open, close) - low.
func LowerWick(c models.Candle) float64 { return math.Min(c.Open, c.Close) - c.Low }

// Streaks counts trailing strictly green and strictly red bars.
// At most one of the two is non-zero.
func Streaks(candles []models.Candle) (green, red int) {
	for i := len(candles) - 1; i >= 0; i-- {
		if !candles[i].IsGreen() {
			break
		}
		green++
	}
	for i := len(candles) - 1; i >= 0; i-- {
		if !candles[i].IsRed() {
			break
		}
		red++
	}
	return green, red
}

func last(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return xs[len(xs)-1]
}

func valid(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
