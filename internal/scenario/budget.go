package scenario

import (
	"time"

	"github.com/jordanhubbard/gauntlet/pkg/models"
)

// tierBaseMinutes is the base budget of each tier, easiest first.
var tierBaseMinutes = [...]int{30, 45, 60, 90, 120, 180}

// multiplierFactor scales the tier base for x1..x6.
var multiplierFactor = [...]float64{1.0, 1.4, 1.8, 2.2, 2.6, 3.0}

// phaseShares is each collaborative phase's percentage of the total budget.
var phaseShares = map[models.Phase]int{
	models.PhasePlanning:    15,
	models.PhaseDevelopment: 50,
	models.PhaseIntegration: 20,
	models.PhaseEvaluation:  15,
}

// TimeBudget is the deterministic time allowed for a scenario.
func TimeBudget(tier models.Tier, mult models.Multiplier) time.Duration {
	ti := tier.Index()
	if ti < 0 {
		ti = 0
	}
	mi := int(models.ClampMultiplier(int(mult))) - 1
	minutes := float64(tierBaseMinutes[ti]) * multiplierFactor[mi]
	return time.Duration(minutes * float64(time.Minute)).Round(time.Second)
}

// PhaseBudgets splits total across the collaborative phases. The last
// phase absorbs rounding so the parts always sum to total.
func PhaseBudgets(total time.Duration) map[models.Phase]time.Duration {
	out := make(map[models.Phase]time.Duration, len(models.CollaborativePhases))
	var used time.Duration
	for i, phase := range models.CollaborativePhases {
		if i == len(models.CollaborativePhases)-1 {
			out[phase] = total - used
			break
		}
		d := total * time.Duration(phaseShares[phase]) / 100
		out[phase] = d
		used += d
	}
	return out
}

// MaxTimeBudget is the largest budget any scenario can get.
func MaxTimeBudget() time.Duration {
	return TimeBudget(models.TierLegendary, models.MaxMultiplier)
}
