// README: Signal registry contract shared by the in-memory and Redis implementations.
package signal

import (
	"context"
	"errors"
	"time"

	"github.com/paulmach/orb"

	"greencorridor/internal/types"
)

var (
	ErrNotFound  = errors.New("signal not found")
	ErrContended = errors.New("signal update contended")
)

// Registry is the shared signal store. Every mutation of a single signal is atomic
// with respect to other mutations of that signal.
type Registry interface {
	Upsert(ctx context.Context, s Signal) error
	Get(ctx context.Context, id types.ID) (Signal, error)
	FindNear(ctx context.Context, box orb.Bound) ([]Signal, error)
	// Preempt applies Decide to the current stored value of the signal.
	Preempt(ctx context.Context, id types.ID, claim Claim, now time.Time) (Signal, Action, error)
	// Restore ends an override immediately. It reports false when none was held.
	Restore(ctx context.Context, id types.ID) (Signal, bool, error)
	// RestoreExpired restores every override whose scheduled time is at or before now.
	RestoreExpired(ctx context.Context, now time.Time) ([]Signal, error)
}
