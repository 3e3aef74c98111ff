package middleware

import (
	"context"
	"errors"
	"sync"
	"time"

	"TradeSentinel/internal/domain/models"
	domrepo "TradeSentinel/internal/domain/repository"
	"TradeSentinel/internal/service/ratelimit"
	"TradeSentinel/pkg/logger"
)

// ErrBufferFull is returned by Notify when the queue cannot take another message.
var ErrBufferFull = errors.New("notify buffer full")

// NotifyPipeline sits between the core and the outbound channels.
// Notify never blocks: messages are queued and a single worker fans them out,
// throttling each channel with its own token bucket.
type NotifyPipeline struct {
	channels    []domrepo.Channel
	metrics     domrepo.Metrics
	log         *logger.Logger
	limiter     *ratelimit.Limiter
	bufSize     int
	burst       float64
	refillPerS  float64
	sendTimeout time.Duration
	now         func() time.Time

	bufCh   chan models.Notification
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	mu      sync.Mutex
}

type PipelineOption func(*NotifyPipeline)

// WithBufferSize sets the queue capacity.
func WithBufferSize(n int) PipelineOption {
	return func(p *NotifyPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithRate sets the per-channel throttle: burst messages, refilled at perMinute.
// A zero burst disables throttling.
func WithRate(perMinute, burst float64) PipelineOption {
	return func(p *NotifyPipeline) {
		p.burst = burst
		p.refillPerS = perMinute / 60
	}
}

// WithSendTimeout bounds a single channel delivery.
func WithSendTimeout(d time.Duration) PipelineOption {
	return func(p *NotifyPipeline) {
		if d > 0 {
			p.sendTimeout = d
		}
	}
}

// WithLimiter shares a limiter, mostly for tests with a fake clock.
func WithLimiter(l *ratelimit.Limiter) PipelineOption {
	return func(p *NotifyPipeline) {
		if l != nil {
			p.limiter = l
		}
	}
}

func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *NotifyPipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// NewNotifyPipeline creates a pipeline over the given channels.
func NewNotifyPipeline(channels []domrepo.Channel, metrics domrepo.Metrics, log *logger.Logger, opts ...PipelineOption) *NotifyPipeline {
	if log == nil {
		log = logger.Nop()
	}
	p := &NotifyPipeline{
		channels:    channels,
		metrics:     metrics,
		log:         log.Component("notify"),
		limiter:     ratelimit.New(),
		bufSize:     256,
		burst:       5,
		refillPerS:  20.0 / 60,
		sendTimeout: 10 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan models.Notification, p.bufSize)
	return p
}

// Notify queues n for delivery. It returns ErrBufferFull instead of blocking.
func (p *NotifyPipeline) Notify(_ context.Context, n models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = p.now()
	}
	select {
	case p.bufCh <- n:
		return nil
	default:
		p.metrics.RecordError("notify_buffer_full")
		p.log.Warn("notification dropped", logger.String("kind", string(n.Kind)))
		return ErrBufferFull
	}
}

// Start launches the delivery worker. Calling it twice is a no-op; a stopped
// pipeline can be started again.
func (p *NotifyPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	stopCh, doneCh := make(chan struct{}), make(chan struct{})
	p.stopCh, p.doneCh = stopCh, doneCh
	p.mu.Unlock()

	go func() {
		defer close(doneCh)
		for {
			select {
			case <-stopCh:
				p.drain(ctx)
				return
			case n := <-p.bufCh:
				p.deliver(ctx, n)
			}
		}
	}()
}

// Stop flushes what is queued and waits for the worker until ctx expires.
func (p *NotifyPipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = false
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()
	close(stopCh)

	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the queue depth.
func (p *NotifyPipeline) Pending() int { return len(p.bufCh) }

func (p *NotifyPipeline) drain(ctx context.Context) {
	for {
		select {
		case n := <-p.bufCh:
			p.deliver(ctx, n)
		default:
			return
		}
	}
}

func (p *NotifyPipeline) deliver(ctx context.Context, n models.Notification) {
	for _, ch := range p.channels {
		name := ch.Name()
		if throttled(ch) && !critical(n.Kind) && !p.limiter.Allow(name, p.burst, p.refillPerS) {
			p.metrics.RecordError("notify_throttled")
			p.log.Warn("notification throttled",
				logger.String("channel", name),
				logger.String("kind", string(n.Kind)),
			)
			continue
		}

		start := p.now()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.sendTimeout)
		err := ch.Send(sctx, n)
		cancel()
		if err != nil {
			p.metrics.RecordError("notify_" + name)
			p.log.Warn("notification failed",
				logger.String("channel", name),
				logger.String("kind", string(n.Kind)),
				logger.Error(err),
			)
			continue
		}
		p.metrics.RecordLatency("notify_"+name, p.now().Sub(start).Seconds())
	}
}

// critical kinds bypass the throttle. Only startup and signal alerts are throttled.
func critical(k models.NotificationKind) bool {
	switch k {
	case models.NotifyTrade, models.NotifyNotTradable, models.NotifyOutcome,
		models.NotifyFatal, models.NotifyShutdown:
		return true
	}
	return false
}

// throttled reports whether ch goes through the limiter. Record channels opt out.
func throttled(ch domrepo.Channel) bool {
	if t, ok := ch.(domrepo.ThrottledChannel); ok {
		return t.Throttled()
	}
	return true
}
