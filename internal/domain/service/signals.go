package service

import (
	"context"
	"time"

	"TradeSentinel/internal/domain/models"
)

// IndicatorEngine derives a snapshot from a candle window.
type IndicatorEngine interface {
	Compute(w models.CandleWindow) (models.IndicatorSnapshot, error)
}

// SignalEvaluator maps a snapshot to a direction. It must not perform I/O.
type SignalEvaluator interface {
	Evaluate(s models.IndicatorSnapshot) (models.Direction, error)
}

// Deduplicator suppresses repeated (instrument, direction) signals inside a cooldown.
type Deduplicator interface {
	ShouldFire(ctx context.Context, instrument string, dir models.Direction, now time.Time) bool
	Record(ctx context.Context, instrument string, dir models.Direction, now time.Time) error
}

// TradeExecutor places an order for a signal and monitors it in the background.
// A nil order with a nil error never happens; failure is models.ErrOrderPlacement.
type TradeExecutor interface {
	Execute(ctx context.Context, sig models.Signal) (*models.TradeOrder, error)
}
