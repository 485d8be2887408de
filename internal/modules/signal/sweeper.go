// README: Periodic restore of expired signal overrides.
package signal

import (
	"context"
	"log"
	"time"
)

type Sweeper struct {
	registry Registry
	interval time.Duration
	now      func() time.Time
}

func NewSweeper(registry Registry, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Sweeper{registry: registry, interval: interval, now: time.Now}
}

// Sweep restores every override that is due.
func (s *Sweeper) Sweep(ctx context.Context) ([]Signal, error) {
	return s.registry.RestoreExpired(ctx, s.now())
}

// Run sweeps on a ticker until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			restored, err := s.Sweep(ctx)
			if err != nil {
				log.Printf("[sweeper] restore expired: %v", err)
			}
			for _, sig := range restored {
				log.Printf("[sweeper] %s restored to %s", sig.ID, sig.State)
			}
		}
	}
}
