package dedup

import (
	"context"
	"fmt"
	"time"

	"TradeSentinel/internal/domain/models"
	"TradeSentinel/internal/domain/repository"
	"TradeSentinel/pkg/logger"
)

// Mode selects how the cooldown window is measured.
type Mode string

const (
	// ModeSliding suppresses a key until cooldown has elapsed since its last fire.
	ModeSliding Mode = "sliding"
	// ModeBucket keys on floor(now/cooldown), so fires in adjacent buckets may be
	// arbitrarily close together.
	ModeBucket Mode = "bucket"
)

// Cache decides whether a (instrument, direction) signal may fire again.
type Cache struct {
	store    repository.CooldownStore
	cooldown time.Duration
	mode     Mode
	log      *logger.Logger
}

// New builds a Cache over store. An empty mode means sliding.
func New(store repository.CooldownStore, cooldown time.Duration, mode Mode, log *logger.Logger) *Cache {
	if mode == "" {
		mode = ModeSliding
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Cache{store: store, cooldown: cooldown, mode: mode, log: log.Component("dedup")}
}

func (c *Cache) Cooldown() time.Duration { return c.cooldown }

// ShouldFire reports whether the key is outside its cooldown. It never mutates state.
// Store errors suppress the signal.
func (c *Cache) ShouldFire(ctx context.Context, instrument string, dir models.Direction, now time.Time) bool {
	last, ok, err := c.store.LastFired(ctx, c.key(instrument, dir, now))
	if err != nil {
		c.log.Error("cooldown lookup failed, suppressing signal",
			logger.Instrument(instrument), logger.String("direction", dir.String()), logger.Error(err))
		return false
	}
	if !ok {
		return true
	}
	if c.mode == ModeBucket {
		return false
	}
	return now.Sub(last) >= c.cooldown
}

// Record marks the key as fired at now. Call it before any downstream I/O.
func (c *Cache) Record(ctx context.Context, instrument string, dir models.Direction, now time.Time) error {
	if err := c.store.SetFired(ctx, c.key(instrument, dir, now), now, c.cooldown); err != nil {
		return fmt.Errorf("record %s %s: %w", instrument, dir, err)
	}
	return nil
}

func (c *Cache) key(instrument string, dir models.Direction, now time.Time) string {
	if c.mode == ModeBucket && c.cooldown > 0 {
		return fmt.Sprintf("%s:%s:%d", instrument, dir, now.UnixNano()/int64(c.cooldown))
	}
	return fmt.Sprintf("%s:%s", instrument, dir)
}
