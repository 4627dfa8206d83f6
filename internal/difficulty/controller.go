// Package difficulty decides how hard the next test for an agent or group should be.
package difficulty

import (
	"github.com/jordanhubbard/gauntlet/pkg/config"
	"github.com/jordanhubbard/gauntlet/pkg/models"
)

// Rules are the advancement thresholds.
type Rules struct {
	// XPPerTier is the experience needed per tier step: leaving tier i takes (i+1)*XPPerTier.
	XPPerTier int
	// SuccessWindow is how many recent history entries the success rate looks at.
	SuccessWindow int
	// MinSuccessRate is the pass fraction needed to advance.
	MinSuccessRate float64
}

// DefaultRules returns the standard progression.
func DefaultRules() Rules {
	return Rules{XPPerTier: 100, SuccessWindow: 10, MinSuccessRate: 0.6}
}

// RulesFromConfig converts the difficulty section of the config.
func RulesFromConfig(cfg config.DifficultyConfig) Rules {
	r := DefaultRules()
	if cfg.XPPerTier > 0 {
		r.XPPerTier = cfg.XPPerTier
	}
	if cfg.SuccessWindow > 0 {
		r.SuccessWindow = cfg.SuccessWindow
	}
	if cfg.MinSuccessRate > 0 {
		r.MinSuccessRate = cfg.MinSuccessRate
	}
	return r
}

// Controller is stateless; every decision is a function of the profiles passed in.
type Controller struct {
	rules Rules
}

// NewController creates a controller with the given rules.
func NewController(rules Rules) *Controller {
	return &Controller{rules: rules}
}

// NextTier returns the tier an agent should be tested at and the multiplier
// derived from that tier alone. A tier advances at most one step per call
// and never moves down.
func (c *Controller) NextTier(p *models.AgentProfile) (models.Tier, models.Multiplier) {
	tier := c.decide(p)
	return tier, models.MultiplierForTierIndex(float64(tier.Index()))
}

// NextGroupTier returns the tier for a group test, which is the lowest tier any
// participant is ready for, and a multiplier from the participants' average tier index.
func (c *Controller) NextGroupTier(profiles []*models.AgentProfile) (models.Tier, models.Multiplier) {
	if len(profiles) == 0 {
		return models.TierBasic, models.MinMultiplier
	}
	group := models.TierLegendary
	sum := 0
	for _, p := range profiles {
		t := c.decide(p)
		if t.Less(group) {
			group = t
		}
		sum += t.Index()
	}
	avg := float64(sum) / float64(len(profiles))
	return group, models.MultiplierForTierIndex(avg)
}

// CanAdvance reports whether p meets both the experience and success-rate bars
// for leaving its current tier.
func (c *Controller) CanAdvance(p *models.AgentProfile) bool {
	if p == nil {
		return false
	}
	i := p.CurrentTier.Index()
	if i < 0 || i >= len(models.Tiers)-1 {
		return false
	}
	if p.ExperiencePoints < (i+1)*c.rules.XPPerTier {
		return false
	}
	rate, ok := p.SuccessRate(c.rules.SuccessWindow)
	if !ok {
		return false
	}
	return rate >= c.rules.MinSuccessRate
}

func (c *Controller) decide(p *models.AgentProfile) models.Tier {
	if p == nil || !p.CurrentTier.Valid() {
		return models.TierBasic
	}
	if c.CanAdvance(p) {
		return p.CurrentTier.Next()
	}
	return p.CurrentTier
}
