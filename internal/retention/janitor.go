// Package retention clears expired in-process state. The redis-backed
// cache and rate limiter expire keys server-side, but their local
// fallbacks evict lazily on access, so state for an idle key would
// otherwise linger for the life of the process.
//
// The janitor runs as a background goroutine and respects context
// cancellation for graceful shutdown.
package retention

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweepable is any store that can drop its expired local entries.
type Sweepable interface {
	// Sweep removes expired entries and reports how many were removed.
	Sweep() int
}

// Janitor periodically sweeps a named set of stores.
type Janitor struct {
	interval time.Duration
	targets  map[string]Sweepable
}

// NewJanitor creates a janitor that sweeps targets on the given interval.
func NewJanitor(interval time.Duration, targets map[string]Sweepable) *Janitor {
	if interval < time.Second {
		interval = time.Minute
	}
	return &Janitor{interval: interval, targets: targets}
}

// Start runs the janitor. It blocks until ctx is canceled.
func (j *Janitor) Start(ctx context.Context) {
	log.Info().
		Dur("interval", j.interval).
		Int("targets", len(j.targets)).
		Msg("Retention janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Retention janitor stopped")
			return
		case <-ticker.C:
			j.runCycle()
		}
	}
}

// runCycle performs one sweep across all targets.
func (j *Janitor) runCycle() {
	start := time.Now()
	total := 0
	for name, target := range j.targets {
		if removed := target.Sweep(); removed > 0 {
			log.Debug().Str("target", name).Int("removed", removed).Msg("Swept expired entries")
			total += removed
		}
	}
	if total > 0 {
		log.Info().
			Int("removed", total).
			Dur("elapsed", time.Since(start)).
			Msg("Retention cycle complete")
	}
}
