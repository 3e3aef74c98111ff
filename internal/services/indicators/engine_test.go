package indicators

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"TradeSentinel/internal/domain/models"
)

var t0 = time.Date(2024, 10, 10, 10, 0, 0, 0, time.UTC)

func randomWindow(r *rand.Rand, n int) models.CandleWindow {
	bars := make([]models.Candle, n)
	price := 100.0
	for i := range bars {
		open := price
		price += (r.Float64() - 0.5) * 2
		if price < 1 {
			price = 1
		}
		hi := math.Max(open, price) + r.Float64()*0.3
		lo := math.Min(open, price) - r.Float64()*0.3
		if lo <= 0 {
			lo = 0.01
		}
		bars[i] = models.Candle{Time: t0.Add(time.Duration(i) * time.Minute), Open: open, High: hi, Low: lo, Close: price}
	}
	return models.NewCandleWindow("TEST", n, bars)
}

func TestComputeRSIStaysInRange(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	p := DefaultParams()
	p.EMAPeriod = 14
	e := NewEngine(p)
	for i := 0; i < 200; i++ {
		n := 15 + r.Intn(200)
		snap, err := e.Compute(randomWindow(r, n))
		if err != nil {
			t.Fatalf("compute %d bars: %v", n, err)
		}
		if snap.RSI < 0 || snap.RSI > 100 {
			t.Fatalf("rsi out of range: %v", snap.RSI)
		}
		if snap.BollingerHigh < snap.BollingerLow {
			t.Fatalf("bands inverted: %v < %v", snap.BollingerHigh, snap.BollingerLow)
		}
	}
}

func TestComputeInsufficientHistory(t *testing.T) {
	e := NewEngine(DefaultParams())
	w := randomWindow(rand.New(rand.NewSource(1)), 40)
	_, err := e.Compute(w)
	if !errors.Is(err, models.ErrIndicatorInsufficient) {
		t.Fatalf("expected insufficient, got %v", err)
	}
	if _, err := e.Compute(models.CandleWindow{}); !errors.Is(err, models.ErrIndicatorInsufficient) {
		t.Fatalf("expected insufficient for empty window, got %v", err)
	}
}

func TestComputeExactlyMinBars(t *testing.T) {
	e := NewEngine(DefaultParams())
	if e.Params().MinBars() != 50 {
		t.Fatalf("expected 50 min bars, got %d", e.Params().MinBars())
	}
	if _, err := e.Compute(randomWindow(rand.New(rand.NewSource(3)), 50)); err != nil {
		t.Fatalf("expected snapshot at min bars: %v", err)
	}
}

func TestGeometryOfLastBar(t *testing.T) {
	c := models.Candle{Open: 10, Close: 12, High: 13, Low: 9.5}
	if Body(c) != 2 {
		t.Fatalf("body: %v", Body(c))
	}
	if UpperWick(c) != 1 {
		t.Fatalf("upper wick: %v", UpperWick(c))
	}
	if LowerWick(c) != 0.5 {
		t.Fatalf("lower wick: %v", LowerWick(c))
	}
	red := models.Candle{Open: 12, Close: 10, High: 12.5, Low: 9}
	if Body(red) != 2 || UpperWick(red) != 0.5 || LowerWick(red) != 1 {
		t.Fatalf("red geometry: %v %v %v", Body(red), UpperWick(red), LowerWick(red))
	}
}

func TestStreaks(t *testing.T) {
	g := models.Candle{Open: 1, Close: 2}
	rd := models.Candle{Open: 2, Close: 1}
	doji := models.Candle{Open: 1, Close: 1}

	cases := []struct {
		name       string
		bars       []models.Candle
		green, red int
	}{
		{"empty", nil, 0, 0},
		{"green run", []models.Candle{rd, g, g, g}, 3, 0},
		{"red run", []models.Candle{g, rd, rd}, 0, 2},
		{"doji breaks", []models.Candle{g, g, doji}, 0, 0},
		{"all green", []models.Candle{g, g, g, g, g}, 5, 0},
	}
	for _, tc := range cases {
		gr, r := Streaks(tc.bars)
		if gr != tc.green || r != tc.red {
			t.Fatalf("%s: got green=%d red=%d", tc.name, gr, r)
		}
	}
}

func TestComputeUsesClock(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	e := NewEngine(DefaultParams(), WithClock(func() time.Time { return at }))
	snap, err := e.Compute(randomWindow(rand.New(rand.NewSource(5)), 60))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !snap.ComputedAt.Equal(at) {
		t.Fatalf("computed at %v", snap.ComputedAt)
	}
	if snap.Instrument != "TEST" {
		t.Fatalf("instrument %q", snap.Instrument)
	}
}
