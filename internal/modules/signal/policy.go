// README: Clearance thresholds, green windows, and the override contention policy.
package signal

import (
	"time"

	"greencorridor/internal/geo"
	"greencorridor/internal/types"
)

// ClearanceThresholdM is the distance at which a signal ahead is pre-empted.
func ClearanceThresholdM(c types.Criticality) float64 {
	switch c {
	case types.CriticalityStable:
		return 40
	case types.CriticalityVeryCritical:
		return 200
	default:
		return 80
	}
}

// GreenWindow is how long a pre-empted signal stays green, measured from the pre-emption.
func GreenWindow(c types.Criticality) time.Duration {
	switch c {
	case types.CriticalityStable:
		return 30 * time.Second
	case types.CriticalityVeryCritical:
		return 120 * time.Second
	default:
		return 60 * time.Second
	}
}

// ShouldPreempt reports whether a vehicle at position is close enough to sig.
func ShouldPreempt(position types.Point, sig Signal, c types.Criticality) bool {
	return geo.Distance(position, sig.Position) <= ClearanceThresholdM(c)
}

// Claim is a corridor's request to hold a signal green.
type Claim struct {
	CorridorID  types.ID
	Criticality types.Criticality
}

type Action int

const (
	ActionNone Action = iota
	// ActionOverride turned a RED signal GREEN.
	ActionOverride
	// ActionExtend pushed the restore time of an existing override.
	ActionExtend
	// ActionTransfer moved ownership to a more critical corridor.
	ActionTransfer
)

func (a Action) String() string {
	switch a {
	case ActionOverride:
		return "override"
	case ActionExtend:
		return "extend"
	case ActionTransfer:
		return "transfer"
	default:
		return "none"
	}
}

// Decide applies a claim to sig at now and returns the resulting signal.
//
// Only an operational RED signal is newly overridden. An existing override is extended
// by a claim of equal or higher criticality; ownership changes only for strictly higher
// criticality. Restore time never moves earlier and the original state is kept.
func Decide(sig Signal, claim Claim, now time.Time) (Signal, Action) {
	if !sig.Operational {
		return sig, ActionNone
	}
	restoreAt := now.Add(GreenWindow(claim.Criticality))

	if sig.Override == nil {
		if sig.State != LightRed {
			return sig, ActionNone
		}
		next := sig
		next.State = LightGreen
		next.Override = &Override{
			CorridorID:         claim.CorridorID,
			Criticality:        claim.Criticality,
			OverriddenAt:       now,
			OriginalState:      sig.State,
			ScheduledRestoreAt: restoreAt,
		}
		return next, ActionOverride
	}

	held := *sig.Override
	if claim.Criticality.Rank() < held.Criticality.Rank() {
		return sig, ActionNone
	}

	action := ActionNone
	if claim.Criticality.Rank() > held.Criticality.Rank() && claim.CorridorID != held.CorridorID {
		held.CorridorID = claim.CorridorID
		held.Criticality = claim.Criticality
		action = ActionTransfer
	} else if claim.Criticality.Rank() > held.Criticality.Rank() {
		held.Criticality = claim.Criticality
		action = ActionExtend
	}
	if restoreAt.After(held.ScheduledRestoreAt) {
		held.ScheduledRestoreAt = restoreAt
		if action == ActionNone {
			action = ActionExtend
		}
	}
	if action == ActionNone {
		return sig, ActionNone
	}
	next := sig
	next.Override = &held
	return next, action
}

// restored returns sig with its original state back and no override.
func restored(sig Signal) Signal {
	if sig.Override == nil {
		return sig
	}
	sig.State = sig.Override.OriginalState
	sig.Override = nil
	return sig
}
