package connection

import (
	"math"
	"time"
)

const (
	PolicyExponential = "exponential"
	PolicyLinear      = "linear"
)

// Policy is the reconnect backoff schedule.
type Policy struct {
	Kind        string
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	Cap         time.Duration
}

// DefaultPolicy is 5 attempts at 5s doubling, capped at 300s.
func DefaultPolicy() Policy {
	return Policy{
		Kind:        PolicyExponential,
		MaxAttempts: 5,
		BaseDelay:   5 * time.Second,
		Multiplier:  2,
		Cap:         300 * time.Second,
	}
}

// Delay returns the wait before retry n (n >= 1).
// Exponential: base * multiplier^(n-1). Linear: base * n. Both capped.
func (p Policy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	var d float64
	switch p.Kind {
	case PolicyLinear:
		d = float64(p.BaseDelay) * float64(n)
	default:
		m := p.Multiplier
		if m < 1 {
			m = 1
		}
		d = float64(p.BaseDelay) * math.Pow(m, float64(n-1))
	}
	if p.Cap > 0 && d > float64(p.Cap) {
		return p.Cap
	}
	return time.Duration(d)
}
