package learning

import (
	"fmt"
	"testing"
	"time"

	"github.com/jordanhubbard/gauntlet/internal/difficulty"
	"github.com/jordanhubbard/gauntlet/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUpdater() *Updater {
	u := NewUpdater(difficulty.NewController(difficulty.DefaultRules()))
	u.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return u
}

func scenarioFor(id string, cat models.Category) *models.TestScenario {
	return &models.TestScenario{ID: id, Category: cat, Tier: models.TierBasic, Multiplier: models.MultiplierX1}
}

func result(score float64, passed bool, weak ...string) *models.EvaluationResult {
	r := &models.EvaluationResult{AggregateScore: score, Passed: passed}
	for _, w := range weak {
		r.ImprovementAreas = append(r.ImprovementAreas, models.ImprovementArea{Criterion: w, Score: 40})
	}
	return r
}

func TestApply_FirstPassedTest(t *testing.T) {
	p := models.NewAgentProfile("a")
	change, applied := newTestUpdater().Apply(p, scenarioFor("s1", models.CategoryCoding), result(95, true))
	require.True(t, applied)

	got := change.Profile
	assert.Equal(t, 95, got.ExperiencePoints)
	assert.Equal(t, 1, got.Level)
	assert.Equal(t, models.TierBasic, got.CurrentTier)
	require.Len(t, got.History, 1)
	assert.Equal(t, "s1", got.History[0].ScenarioID)
	assert.Equal(t, 1, got.TestsTaken)
	assert.Equal(t, 1, got.TestsPassed)
	assert.Equal(t, []models.Category{models.CategoryCoding}, got.Strengths)
	assert.Empty(t, got.Weaknesses)
	assert.False(t, change.LeveledUp())
	assert.False(t, change.Advanced())

	assert.Empty(t, p.History, "input profile untouched")
	assert.Zero(t, p.ExperiencePoints)
}

func TestApply_FailedTestEarnsHalf(t *testing.T) {
	change, _ := newTestUpdater().Apply(models.NewAgentProfile("a"), scenarioFor("s1", models.CategorySecurity), result(71, false, "Threat model"))
	assert.Equal(t, 36, change.Profile.ExperiencePoints)
	assert.Equal(t, 36, change.XPGained)
	assert.Equal(t, []string{"Threat model"}, change.Entry.ImprovementAreas)
	assert.Equal(t, []models.Category{models.CategorySecurity}, change.Profile.Weaknesses)
}

func TestApply_LevelUp(t *testing.T) {
	p := models.NewAgentProfile("a")
	p.ExperiencePoints = 90
	change, _ := newTestUpdater().Apply(p, scenarioFor("s1", models.CategoryCoding), result(20, true))
	assert.Equal(t, 110, change.Profile.ExperiencePoints)
	assert.Equal(t, 2, change.Profile.Level)
	assert.True(t, change.LeveledUp())
}

func TestApply_AdvancesExactlyOneTier(t *testing.T) {
	p := models.NewAgentProfile("a")
	p.ExperiencePoints = 1000
	for i := 0; i < 10; i++ {
		p.History = append(p.History, models.HistoryEntry{ScenarioID: fmt.Sprintf("h%d", i), Category: models.CategoryCoding, Passed: i < 7})
	}

	change, _ := newTestUpdater().Apply(p, scenarioFor("s1", models.CategoryCoding), result(80, true))
	assert.Equal(t, models.TierIntermediate, change.Profile.CurrentTier)
	assert.True(t, change.Advanced())
}

func TestApply_NeverDemotes(t *testing.T) {
	p := models.NewAgentProfile("a")
	p.CurrentTier = models.TierExpert
	for i := 0; i < 10; i++ {
		p.History = append(p.History, models.HistoryEntry{ScenarioID: fmt.Sprintf("h%d", i), Passed: false})
	}
	change, _ := newTestUpdater().Apply(p, scenarioFor("s1", models.CategoryCoding), result(5, false))
	assert.Equal(t, models.TierExpert, change.Profile.CurrentTier)
}

func TestApply_Idempotent(t *testing.T) {
	u := newTestUpdater()
	sc := scenarioFor("s1", models.CategoryDebugging)
	res := result(88, true)

	once, applied := u.Apply(models.NewAgentProfile("a"), sc, res)
	require.True(t, applied)
	twice, applied := u.Apply(once.Profile, sc, res)
	assert.False(t, applied)
	assert.Equal(t, once.Profile, twice.Profile)
}

func TestApply_HistoryIsBounded(t *testing.T) {
	p := models.NewAgentProfile("a")
	for i := 0; i < models.HistoryCapacity; i++ {
		p.History = append(p.History, models.HistoryEntry{ScenarioID: fmt.Sprintf("h%02d", i), Category: models.CategoryTesting, Passed: true})
	}

	change, _ := newTestUpdater().Apply(p, scenarioFor("new", models.CategoryTesting), result(70, true))
	h := change.Profile.History
	require.Len(t, h, models.HistoryCapacity)
	assert.Equal(t, "h01", h[0].ScenarioID, "oldest entry evicted")
	assert.Equal(t, "new", h[len(h)-1].ScenarioID)
}

func TestApply_TraitsUseRecentWindow(t *testing.T) {
	p := models.NewAgentProfile("a")
	// Old failures in security fall out of the 20-entry window.
	for i := 0; i < 10; i++ {
		p.History = append(p.History, models.HistoryEntry{ScenarioID: fmt.Sprintf("old%d", i), Category: models.CategorySecurity, Passed: false})
	}
	cats := []models.Category{models.CategoryCoding, models.CategoryCoding, models.CategoryCoding, models.CategoryTesting, models.CategoryTesting, models.CategoryDebugging, models.CategoryInnovation}
	for i := 0; i < 19; i++ {
		c := cats[i%len(cats)]
		p.History = append(p.History, models.HistoryEntry{ScenarioID: fmt.Sprintf("new%d", i), Category: c, Passed: c != models.CategoryInnovation})
	}

	change, _ := newTestUpdater().Apply(p, scenarioFor("s1", models.CategoryPerformance), result(10, false))
	assert.Equal(t, []models.Category{models.CategoryCoding, models.CategoryTesting, models.CategoryDebugging}, change.Profile.Strengths)
	assert.Equal(t, []models.Category{models.CategoryInnovation, models.CategoryPerformance}, change.Profile.Weaknesses)
	assert.LessOrEqual(t, len(change.Profile.Strengths), models.MaxTraits)
}
