package signal

import (
	"fmt"

	"TradeSentinel/internal/domain/models"
)

// Rules holds the exhaustion-reversal thresholds.
type Rules struct {
	Overbought      float64
	Oversold        float64
	MinStreak       int
	WickRatio       float64
	MaxBodyMultiple float64
}

func DefaultRules() Rules {
	return Rules{
		Overbought:      70,
		Oversold:        30,
		MinStreak:       4,
		WickRatio:       0.35,
		MaxBodyMultiple: 2,
	}
}

// Evaluator applies Rules to snapshots. It holds no state.
type Evaluator struct {
	rules Rules
}

func NewEvaluator(r Rules) *Evaluator {
	return &Evaluator{rules: r}
}

// Evaluate returns the direction a snapshot qualifies for, or DirectionNone.
// A snapshot that fails the sanity guards yields models.ErrMalformedSnapshot.
func (e *Evaluator) Evaluate(s models.IndicatorSnapshot) (models.Direction, error) {
	if err := Check(s); err != nil {
		return models.DirectionNone, err
	}
	r := e.rules
	if !e.bodyInRange(s) {
		return models.DirectionNone, nil
	}

	switch {
	case s.LastPrice > s.EMA &&
		s.ConsecutiveGreen >= r.MinStreak &&
		s.RSI > r.Overbought &&
		s.LastPrice >= s.BollingerHigh &&
		s.UpperWick > r.WickRatio*s.BodySize:
		return models.DirectionPut, nil
	case s.LastPrice < s.EMA &&
		s.ConsecutiveRed >= r.MinStreak &&
		s.RSI < r.Oversold &&
		s.LastPrice <= s.BollingerLow &&
		s.LowerWick > r.WickRatio*s.BodySize:
		return models.DirectionCall, nil
	}
	return models.DirectionNone, nil
}

// avgBody <= body <= k*avgBody, with a zero-sized candle never qualifying.
func (e *Evaluator) bodyInRange(s models.IndicatorSnapshot) bool {
	if s.BodySize <= 0 || s.AvgBody <= 0 {
		return false
	}
	return s.BodySize >= s.AvgBody && s.BodySize <= e.rules.MaxBodyMultiple*s.AvgBody
}

// Check rejects snapshots that must never reach the rule.
func Check(s models.IndicatorSnapshot) error {
	switch {
	case !s.Finite():
		return fmt.Errorf("%s: non-finite value: %w", s.Instrument, models.ErrMalformedSnapshot)
	case s.RSI < 0 || s.RSI > 100:
		return fmt.Errorf("%s: rsi %.2f: %w", s.Instrument, s.RSI, models.ErrMalformedSnapshot)
	case s.LastPrice <= 0:
		return fmt.Errorf("%s: price %v: %w", s.Instrument, s.LastPrice, models.ErrMalformedSnapshot)
	case s.BodySize < 0:
		return fmt.Errorf("%s: body %v: %w", s.Instrument, s.BodySize, models.ErrMalformedSnapshot)
	case s.BollingerHigh <= 0 || s.BollingerLow <= 0:
		return fmt.Errorf("%s: bands %v/%v: %w", s.Instrument, s.BollingerLow, s.BollingerHigh, models.ErrMalformedSnapshot)
	case s.EMA <= 0:
		return fmt.Errorf("%s: ema %v: %w", s.Instrument, s.EMA, models.ErrMalformedSnapshot)
	}
	return nil
}
