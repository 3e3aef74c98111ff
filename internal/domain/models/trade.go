package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderClass selects the broker order mechanism.
type OrderClass string

const (
	OrderClassPrimary  OrderClass = "PRIMARY"  // binary
	OrderClassFallback OrderClass = "FALLBACK" // digital spot
)

// OrderRequest is what gets sent to the broker for one placement attempt.
type OrderRequest struct {
	Instrument string
	Direction  Direction
	Amount     decimal.Decimal
	Duration   int // minutes
}

// TradeOrder is an accepted order. Immutable once created.
type TradeOrder struct {
	SignalID      string          `json:"signal_id"`
	Instrument    string          `json:"instrument"`
	Direction     Direction       `json:"direction"`
	Investment    decimal.Decimal `json:"investment"`
	Duration      int             `json:"duration_minutes"`
	OrderID       string          `json:"order_id"`
	OrderClass    OrderClass      `json:"order_class"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	PlacedAt      time.Time       `json:"placed_at"`
}

// TradeResult classifies an outcome by balance delta.
type TradeResult string

const (
	ResultWin       TradeResult = "WIN"
	ResultLoss      TradeResult = "LOSS"
	ResultBreakeven TradeResult = "BREAKEVEN"
	ResultUnknown   TradeResult = "UNKNOWN"
)

// ClassifyProfit maps a profit to Win, Loss or Breakeven.
func ClassifyProfit(profit decimal.Decimal) TradeResult {
	switch profit.Sign() {
	case 1:
		return ResultWin
	case -1:
		return ResultLoss
	default:
		return ResultBreakeven
	}
}

// TradeOutcome is the terminal observation of an order.
type TradeOutcome struct {
	Order        TradeOrder      `json:"order"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Profit       decimal.Decimal `json:"profit"`
	Result       TradeResult     `json:"result"`
	ObservedAt   time.Time       `json:"observed_at"`
}
