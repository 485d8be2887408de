// README: Closed enumerations for urgency and traffic density.
package types

import "strings"

// Criticality is the patient urgency tier. The zero value is CriticalityCritical so an
// unset field never resolves to the least aggressive tier.
type Criticality int

const (
	CriticalityCritical Criticality = iota
	CriticalityStable
	CriticalityVeryCritical
)

// ParseCriticality never fails: unknown input resolves to CRITICAL.
func ParseCriticality(s string) Criticality {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "STABLE":
		return CriticalityStable
	case "CRITICAL":
		return CriticalityCritical
	case "VERY_CRITICAL":
		return CriticalityVeryCritical
	default:
		return CriticalityCritical
	}
}

func (c Criticality) String() string {
	switch c {
	case CriticalityStable:
		return "STABLE"
	case CriticalityVeryCritical:
		return "VERY_CRITICAL"
	case CriticalityCritical:
		return "CRITICAL"
	default:
		return "CRITICAL"
	}
}

// Rank orders tiers by urgency: STABLE < CRITICAL < VERY_CRITICAL.
func (c Criticality) Rank() int {
	switch c {
	case CriticalityStable:
		return 0
	case CriticalityVeryCritical:
		return 2
	case CriticalityCritical:
		return 1
	default:
		return 1
	}
}

func (c Criticality) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Criticality) UnmarshalText(b []byte) error {
	*c = ParseCriticality(string(b))
	return nil
}

// CongestionLevel is an external coarse traffic estimate.
type CongestionLevel int

const (
	CongestionHigh CongestionLevel = iota
	CongestionLow
	CongestionMedium
)

// ParseCongestion never fails: unknown or empty input resolves to HIGH, the pessimistic estimate.
func ParseCongestion(s string) CongestionLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return CongestionLow
	case "MEDIUM":
		return CongestionMedium
	case "HIGH":
		return CongestionHigh
	default:
		return CongestionHigh
	}
}

func (c CongestionLevel) String() string {
	switch c {
	case CongestionLow:
		return "LOW"
	case CongestionMedium:
		return "MEDIUM"
	case CongestionHigh:
		return "HIGH"
	default:
		return "HIGH"
	}
}

func (c CongestionLevel) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *CongestionLevel) UnmarshalText(b []byte) error {
	*c = ParseCongestion(string(b))
	return nil
}
