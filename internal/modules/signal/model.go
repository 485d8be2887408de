// README: Traffic signal, light state, and pre-emption override record.
package signal

import (
	"strings"
	"time"

	"greencorridor/internal/types"
)

type LightState string

const (
	LightRed    LightState = "RED"
	LightGreen  LightState = "GREEN"
	LightYellow LightState = "YELLOW"
)

// ParseLightState maps unknown input to RED, which is treated as blocking.
func ParseLightState(s string) LightState {
	switch LightState(strings.ToUpper(strings.TrimSpace(s))) {
	case LightGreen:
		return LightGreen
	case LightYellow:
		return LightYellow
	default:
		return LightRed
	}
}

func (l *LightState) UnmarshalText(b []byte) error {
	*l = ParseLightState(string(b))
	return nil
}

// Override records a corridor's pre-emption of a signal.
type Override struct {
	CorridorID         types.ID          `json:"corridorId"`
	Criticality        types.Criticality `json:"criticality"`
	OverriddenAt       time.Time         `json:"overriddenAt"`
	OriginalState      LightState        `json:"originalState"`
	ScheduledRestoreAt time.Time         `json:"scheduledRestoreAt"`
}

type Signal struct {
	ID          types.ID    `json:"id"`
	Name        string      `json:"name,omitempty"`
	Position    types.Point `json:"position"`
	Operational bool        `json:"operational"`
	State       LightState  `json:"state"`
	Override    *Override   `json:"override,omitempty"`
}

func (s Signal) Overridden() bool {
	return s.Override != nil
}

// Expired reports whether the override is due for restore at now.
func (s Signal) Expired(now time.Time) bool {
	return s.Override != nil && !now.Before(s.Override.ScheduledRestoreAt)
}

func (s Signal) clone() Signal {
	if s.Override != nil {
		ov := *s.Override
		s.Override = &ov
	}
	return s
}
