package model

import "fmt"

// Tier is the daemon's escalation level.
type Tier int

const (
	TierNormal   Tier = 1
	TierElevated Tier = 2
	TierCritical Tier = 3
)

func (t Tier) String() string {
	switch t {
	case TierNormal:
		return "normal"
	case TierElevated:
		return "elevated"
	case TierCritical:
		return "critical"
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// Valid reports whether t is one of the three defined tiers.
func (t Tier) Valid() bool {
	return t >= TierNormal && t <= TierCritical
}
