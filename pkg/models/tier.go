package models

import (
	"fmt"
	"math"
	"strings"
)

// Tier is an ordered difficulty level.
type Tier string

const (
	TierBasic        Tier = "basic"
	TierIntermediate Tier = "intermediate"
	TierAdvanced     Tier = "advanced"
	TierExpert       Tier = "expert"
	TierMaster       Tier = "master"
	TierLegendary    Tier = "legendary"
)

// Tiers lists every tier from easiest to hardest.
var Tiers = []Tier{
	TierBasic,
	TierIntermediate,
	TierAdvanced,
	TierExpert,
	TierMaster,
	TierLegendary,
}

// ParseTier resolves a tier name case-insensitively.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if t.Index() < 0 {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}

// Index returns the position of t in Tiers, or -1 when t is not a known tier.
func (t Tier) Index() int {
	for i, candidate := range Tiers {
		if candidate == t {
			return i
		}
	}
	return -1
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool { return t.Index() >= 0 }

// Next returns the tier one step harder. Legendary is terminal.
func (t Tier) Next() Tier {
	i := t.Index()
	if i < 0 {
		return TierBasic
	}
	if i+1 >= len(Tiers) {
		return t
	}
	return Tiers[i+1]
}

// Less reports whether t is easier than other.
func (t Tier) Less(other Tier) bool { return t.Index() < other.Index() }

// MaxTier returns the harder of two tiers.
func MaxTier(a, b Tier) Tier {
	if a.Less(b) {
		return b
	}
	return a
}

// TierAt returns the tier at index i, clamped to the valid range.
func TierAt(i int) Tier {
	if i < 0 {
		i = 0
	}
	if i >= len(Tiers) {
		i = len(Tiers) - 1
	}
	return Tiers[i]
}

func (t Tier) String() string { return string(t) }

// Multiplier scales a scenario's depth and time budget independently of its tier.
type Multiplier int

const (
	MultiplierX1 Multiplier = iota + 1
	MultiplierX2
	MultiplierX3
	MultiplierX4
	MultiplierX5
	MultiplierX6
)

// MinMultiplier and MaxMultiplier bound every multiplier.
const (
	MinMultiplier = MultiplierX1
	MaxMultiplier = MultiplierX6
)

// ClampMultiplier forces m into [x1, x6].
func ClampMultiplier(m int) Multiplier {
	if m < int(MinMultiplier) {
		return MinMultiplier
	}
	if m > int(MaxMultiplier) {
		return MaxMultiplier
	}
	return Multiplier(m)
}

// MultiplierForTierIndex maps an average tier index onto a multiplier.
func MultiplierForTierIndex(avg float64) Multiplier {
	return ClampMultiplier(int(math.Round(avg/2.5)) + 1)
}

// ParseMultiplier accepts "3" or "x3".
func ParseMultiplier(s string) (Multiplier, error) {
	var n int
	trimmed := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "x")
	if _, err := fmt.Sscanf(trimmed, "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid multiplier %q: %w", s, err)
	}
	if n < int(MinMultiplier) || n > int(MaxMultiplier) {
		return 0, fmt.Errorf("multiplier %q out of range x1..x6", s)
	}
	return Multiplier(n), nil
}

func (m Multiplier) String() string { return fmt.Sprintf("x%d", int(m)) }
