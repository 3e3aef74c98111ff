package usecase

import (
	"fmt"
	"time"

	"TradeSentinel/internal/domain/models"
	"TradeSentinel/pkg/util"

	"github.com/shopspring/decimal"
)

// Message builders for operator notifications. Text is Telegram Markdown.

func signalNotification(sig models.Signal, loc *time.Location) models.Notification {
	s := sig.Snapshot
	return models.Notification{
		Kind:       models.NotifySignal,
		Instrument: sig.Instrument,
		Text: fmt.Sprintf("🚨 *SIGNAL*\n\n*Pair:* %s\n*Signal:* %s\n*Price:* %.5f\n*RSI:* %.1f\n*Time:* %s",
			sig.Instrument, sig.Direction, s.LastPrice, s.RSI, util.FormatInZone(sig.FiredAt, loc)),
		Fields: map[string]interface{}{
			"signal_id": sig.ID,
			"direction": string(sig.Direction),
			"price":     s.LastPrice,
			"rsi":       s.RSI,
			"ema":       s.EMA,
			"streak":    max(s.ConsecutiveGreen, s.ConsecutiveRed),
		},
		CreatedAt: sig.FiredAt,
	}
}

func tradeNotification(o models.TradeOrder) models.Notification {
	return models.Notification{
		Kind:       models.NotifyTrade,
		Instrument: o.Instrument,
		Text: fmt.Sprintf("✅ *TRADE PLACED*\n\n*Pair:* %s\n*Direction:* %s\n*Type:* %s\n*ID:* %s\n*Amount:* $%s",
			o.Instrument, o.Direction, o.OrderClass, o.OrderID, o.Investment.StringFixed(2)),
		Fields: map[string]interface{}{
			"signal_id":      o.SignalID,
			"order_id":       o.OrderID,
			"order_class":    string(o.OrderClass),
			"direction":      string(o.Direction),
			"investment":     o.Investment.String(),
			"balance_before": o.BalanceBefore.String(),
			"duration":       o.Duration,
		},
		CreatedAt: o.PlacedAt,
	}
}

func notTradableNotification(sig models.Signal, at time.Time) models.Notification {
	return models.Notification{
		Kind:       models.NotifyNotTradable,
		Instrument: sig.Instrument,
		Text:       fmt.Sprintf("⚠️ *NOT TRADABLE*\n\n*Pair:* %s\n*Signal:* %s\nBoth order types were rejected.", sig.Instrument, sig.Direction),
		Fields:     map[string]interface{}{"signal_id": sig.ID, "direction": string(sig.Direction)},
		CreatedAt:  at,
	}
}

func outcomeNotification(out models.TradeOutcome) models.Notification {
	text := fmt.Sprintf("🏁 *RESULT*\n\n*Pair:* %s\n*Result:* %s\n*Profit:* $%s\n*Balance:* $%s",
		out.Order.Instrument, out.Result, out.Profit.StringFixed(2), out.BalanceAfter.StringFixed(2))
	if out.Result == models.ResultUnknown {
		text = fmt.Sprintf("🏁 *RESULT*\n\n*Pair:* %s\n*Result:* UNKNOWN\nBalance could not be read after expiry (order %s).",
			out.Order.Instrument, out.Order.OrderID)
	}
	return models.Notification{
		Kind:       models.NotifyOutcome,
		Instrument: out.Order.Instrument,
		Text:       text,
		Fields: map[string]interface{}{
			"signal_id":     out.Order.SignalID,
			"order_id":      out.Order.OrderID,
			"order_class":   string(out.Order.OrderClass),
			"direction":     string(out.Order.Direction),
			"result":        string(out.Result),
			"profit":        out.Profit.String(),
			"balance_after": out.BalanceAfter.String(),
		},
		CreatedAt: out.ObservedAt,
	}
}

func startupNotification(balance decimal.Decimal, mode string, at time.Time, loc *time.Location) models.Notification {
	return models.Notification{
		Kind:      models.NotifyStartup,
		Text:      fmt.Sprintf("🤖 *Bot started*\n*Account:* %s\n*Balance:* $%s\n*Time:* %s", mode, balance.StringFixed(2), util.FormatInZone(at, loc)),
		Fields:    map[string]interface{}{"balance": balance.String(), "account": mode},
		CreatedAt: at,
	}
}

func fatalNotification(err error, at time.Time) models.Notification {
	return models.Notification{
		Kind:      models.NotifyFatal,
		Text:      fmt.Sprintf("❌ *Bot stopped*\nConnection lost: %v", err),
		Fields:    map[string]interface{}{"error": err.Error()},
		CreatedAt: at,
	}
}

func shutdownNotification(inFlight int, at time.Time, loc *time.Location) models.Notification {
	return models.Notification{
		Kind:      models.NotifyShutdown,
		Text:      fmt.Sprintf("🛑 *Bot stopped*\n*Open trades abandoned:* %d\n*Time:* %s", inFlight, util.FormatInZone(at, loc)),
		Fields:    map[string]interface{}{"monitors_in_flight": inFlight},
		CreatedAt: at,
	}
}
