package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var connectionStates = []string{"disconnected", "connecting", "connected", "degraded", "fatal"}

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	scans       prometheus.Counter
	scanSignals prometheus.Histogram
	scanSeconds prometheus.Histogram
	signals     *prometheus.CounterVec
	suppressed  *prometheus.CounterVec
	trades      *prometheus.CounterVec
	outcomes    *prometheus.CounterVec
	profit      *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	lastPrice   *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
	connState   *prometheus.GaugeVec
	monitors    prometheus.Gauge
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		scans: f.NewCounter(prometheus.CounterOpts{
			Name: "tradesentinel_scan_cycles_total",
			Help: "Total number of completed scan cycles",
		}),
		scanSignals: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradesentinel_scan_signals",
			Help:    "Signals emitted per scan cycle",
			Buckets: []float64{0, 1, 2, 3, 5, 8},
		}),
		scanSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradesentinel_scan_duration_seconds",
			Help:    "Duration of one scan cycle in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		signals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesentinel_signals_total",
			Help: "Signals that passed deduplication",
		}, []string{"instrument", "direction"}),
		suppressed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesentinel_signals_suppressed_total",
			Help: "Signals suppressed by the cooldown",
		}, []string{"instrument"}),
		trades: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesentinel_trades_total",
			Help: "Accepted orders by class",
		}, []string{"instrument", "class"}),
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesentinel_outcomes_total",
			Help: "Trade outcomes by result",
		}, []string{"instrument", "result"}),
		profit: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesentinel_profit_abs_total",
			Help: "Absolute profit observed by result",
		}, []string{"instrument", "result"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesentinel_errors_total",
			Help: "Total number of errors encountered",
		}, []string{"type"}),
		lastPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradesentinel_last_price",
			Help: "Last recorded price for an instrument",
		}, []string{"instrument"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradesentinel_operation_duration_seconds",
			Help:    "Duration of operations in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		connState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradesentinel_connection_state",
			Help: "1 for the current broker connection state",
		}, []string{"state"}),
		monitors: f.NewGauge(prometheus.GaugeOpts{
			Name: "tradesentinel_monitors_in_flight",
			Help: "Trade monitors waiting for expiry",
		}),
	}
}

// RecordScan records one finished cycle.
func (r *Recorder) RecordScan(signals int, seconds float64) {
	r.scans.Inc()
	r.scanSignals.Observe(float64(signals))
	r.scanSeconds.Observe(seconds)
}

func (r *Recorder) RecordSignal(instrument, direction string) {
	r.signals.WithLabelValues(instrument, direction).Inc()
}

func (r *Recorder) RecordSuppressed(instrument string) {
	r.suppressed.WithLabelValues(instrument).Inc()
}

func (r *Recorder) RecordTrade(instrument, class string) {
	r.trades.WithLabelValues(instrument, class).Inc()
}

// RecordOutcome counts the result; profit magnitude goes to a separate counter
// since counters cannot decrease.
func (r *Recorder) RecordOutcome(instrument, result string, profit float64) {
	r.outcomes.WithLabelValues(instrument, result).Inc()
	if profit < 0 {
		profit = -profit
	}
	r.profit.WithLabelValues(instrument, result).Add(profit)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for an instrument.
func (r *Recorder) RecordLastPrice(instrument string, price float64) {
	r.lastPrice.WithLabelValues(instrument).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// SetConnectionState flips the state gauge so exactly one label is 1.
func (r *Recorder) SetConnectionState(state string) {
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		r.connState.WithLabelValues(s).Set(v)
	}
}

func (r *Recorder) SetMonitorsInFlight(n int) {
	r.monitors.Set(float64(n))
}

// Nop discards every observation.
type Nop struct{}

func (Nop) RecordScan(int, float64)               {}
func (Nop) RecordSignal(string, string)           {}
func (Nop) RecordSuppressed(string)               {}
func (Nop) RecordTrade(string, string)            {}
func (Nop) RecordOutcome(string, string, float64) {}
func (Nop) RecordError(string)                    {}
func (Nop) RecordLastPrice(string, float64)       {}
func (Nop) RecordLatency(string, float64)         {}
func (Nop) SetConnectionState(string)             {}
func (Nop) SetMonitorsInFlight(int)               {}
