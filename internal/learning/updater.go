package learning

import (
	"math"
	"sort"
	"time"

	"github.com/jordanhubbard/gauntlet/internal/difficulty"
	"github.com/jordanhubbard/gauntlet/pkg/models"
)

const (
	// TraitWindow is how many recent entries strengths and weaknesses look at.
	TraitWindow = 20
	// TraitCount is how many categories each of strengths and weaknesses keeps.
	TraitCount = 3
	// XPPerLevel is the experience needed per level.
	XPPerLevel = 100
)

// Change describes what one Apply did to a profile.
type Change struct {
	Profile   *models.AgentProfile
	Entry     models.HistoryEntry
	XPGained  int
	PrevLevel int
	PrevTier  models.Tier
}

// LeveledUp reports whether the level increased.
func (c Change) LeveledUp() bool { return c.Profile.Level > c.PrevLevel }

// Advanced reports whether the tier increased.
func (c Change) Advanced() bool { return c.PrevTier.Less(c.Profile.CurrentTier) }

// Updater folds evaluation results into profiles. It never touches a Store.
type Updater struct {
	controller *difficulty.Controller
	now        func() time.Time
}

// NewUpdater creates an updater that records tiers decided by controller.
func NewUpdater(controller *difficulty.Controller) *Updater {
	return &Updater{controller: controller, now: time.Now}
}

// Apply returns an updated copy of profile. When the scenario was already
// applied the copy is unchanged and applied is false. The input is never modified.
func (u *Updater) Apply(profile *models.AgentProfile, sc *models.TestScenario, res *models.EvaluationResult) (change Change, applied bool) {
	p := profile.Clone()
	change = Change{Profile: p, PrevLevel: p.Level, PrevTier: p.CurrentTier}
	if p.HasApplied(sc.ID) {
		return change, false
	}

	// The tier this test was decided at, computed from the state before it.
	decided, _ := u.controller.NextTier(profile)
	p.CurrentTier = models.MaxTier(p.CurrentTier, decided)

	now := u.now().UTC()
	entry := models.HistoryEntry{
		ScenarioID:       sc.ID,
		Timestamp:        now,
		Category:         sc.Category,
		Tier:             sc.Tier,
		Multiplier:       sc.Multiplier,
		Score:            res.AggregateScore,
		Passed:           res.Passed,
		ImprovementAreas: res.ImprovementCriteria(),
	}
	p.History = append(p.History, entry)
	if over := len(p.History) - models.HistoryCapacity; over > 0 {
		p.History = append([]models.HistoryEntry(nil), p.History[over:]...)
	}

	p.AppliedScenarios = append(p.AppliedScenarios, sc.ID)
	if over := len(p.AppliedScenarios) - models.AppliedCapacity; over > 0 {
		p.AppliedScenarios = append([]string(nil), p.AppliedScenarios[over:]...)
	}

	p.Strengths, p.Weaknesses = traits(p.RecentHistory(TraitWindow))

	gained := ExperienceFor(res)
	p.ExperiencePoints += gained
	if p.ExperiencePoints >= p.Level*XPPerLevel {
		p.Level++
	}

	p.TestsTaken++
	if res.Passed {
		p.TestsPassed++
	}
	p.UpdatedAt = now

	change.Entry = entry
	change.XPGained = gained
	return change, true
}

// ExperienceFor is the XP a result earns: the rounded score, halved on failure.
func ExperienceFor(res *models.EvaluationResult) int {
	if res.Passed {
		return int(math.Round(res.AggregateScore))
	}
	return int(math.Round(res.AggregateScore / 2))
}

// traits returns the most frequent categories among passed and failed entries.
func traits(entries []models.HistoryEntry) (strengths, weaknesses []models.Category) {
	passed := map[models.Category]int{}
	failed := map[models.Category]int{}
	for _, e := range entries {
		if e.Passed {
			passed[e.Category]++
		} else {
			failed[e.Category]++
		}
	}
	return topCategories(passed), topCategories(failed)
}

func topCategories(counts map[models.Category]int) []models.Category {
	out := make([]models.Category, 0, len(counts))
	for c := range counts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if counts[out[i]] != counts[out[j]] {
			return counts[out[i]] > counts[out[j]]
		}
		return out[i] < out[j]
	})
	if len(out) > TraitCount {
		out = out[:TraitCount]
	}
	return out
}
