// README: Wire payloads shared by the broadcast sinks.
package broadcast

import (
	"time"

	"greencorridor/internal/modules/corridor"
	"greencorridor/internal/modules/signal"
	"greencorridor/internal/types"
)

const (
	SubjectSignalCleared = "signal.cleared"
	subjectUpdateFormat  = "corridor.%s.update"
)

// SignalCleared announces that a corridor turned a signal green.
type SignalCleared struct {
	SignalID           types.ID          `json:"signalId"`
	Name               string            `json:"name,omitempty"`
	State              signal.LightState `json:"state"`
	CorridorID         types.ID          `json:"corridorId"`
	Position           types.Point       `json:"position"`
	ScheduledRestoreAt time.Time         `json:"scheduledRestoreAt"`
}

func clearedEvents(snap corridor.Snapshot) []SignalCleared {
	out := make([]SignalCleared, 0, len(snap.ClearedSignals))
	for _, s := range snap.ClearedSignals {
		ev := SignalCleared{
			SignalID:   s.ID,
			Name:       s.Name,
			State:      s.State,
			CorridorID: snap.CorridorID,
			Position:   s.Position,
		}
		if s.Override != nil {
			ev.ScheduledRestoreAt = s.Override.ScheduledRestoreAt
		}
		out = append(out, ev)
	}
	return out
}
