// README: Proximity engine; pre-empts signals near a moving corridor vehicle.
package signal

import (
	"context"
	"log"
	"time"

	"greencorridor/internal/types"
)

type Engine struct {
	registry Registry
}

func NewEngine(registry Registry) *Engine {
	return &Engine{registry: registry}
}

// Apply claims every operational signal within the clearance threshold of position and
// returns the ones this call turned from RED to GREEN. Registry failures skip the signal.
func (e *Engine) Apply(ctx context.Context, corridorID types.ID, crit types.Criticality, position types.Point, signals []Signal, now time.Time) []Signal {
	claim := Claim{CorridorID: corridorID, Criticality: crit}
	var cleared []Signal
	for _, s := range signals {
		if !s.Operational || !ShouldPreempt(position, s, crit) {
			continue
		}
		next, action, err := e.registry.Preempt(ctx, s.ID, claim, now)
		if err != nil {
			log.Printf("[signals] preempt %s for corridor %s: %v", s.ID, corridorID, err)
			continue
		}
		if action == ActionOverride {
			log.Printf("[signals] %s cleared for corridor %s until %s", s.ID, corridorID, next.Override.ScheduledRestoreAt.Format(time.RFC3339))
			cleared = append(cleared, next)
		}
	}
	return cleared
}
