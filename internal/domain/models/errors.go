package models

import "errors"

var (
	// ErrTransientConnection: connect or health probe failed; retried with backoff.
	ErrTransientConnection = errors.New("transient connection error")
	// ErrDataUnavailable: candle fetch empty or below completeness threshold.
	ErrDataUnavailable = errors.New("candle data unavailable")
	// ErrIndicatorInsufficient: not enough history; skipped silently.
	ErrIndicatorInsufficient = errors.New("insufficient history for indicators")
	// ErrMalformedSnapshot: snapshot failed sanity guards.
	ErrMalformedSnapshot = errors.New("malformed indicator snapshot")
	// ErrOrderPlacement: both order classes rejected.
	ErrOrderPlacement = errors.New("order placement failed")
	// ErrReconnectExhausted: reconnect attempts exhausted; terminal.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)
