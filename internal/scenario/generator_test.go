package scenario

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jordanhubbard/gauntlet/internal/knowledge"
	"github.com/jordanhubbard/gauntlet/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSource struct{ calls int }

func (f *failingSource) FetchTrends(ctx context.Context, c models.Category) ([]string, error) {
	f.calls++
	return nil, errors.New("feed unavailable")
}

func TestGenerate_UnknownCategory(t *testing.T) {
	g := NewGenerator(WithSeed(1))
	_, err := g.Generate(context.Background(), Request{Category: "cooking", ParticipantIDs: []string{"a"}})
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestGenerate_CollaborationNeedsTwo(t *testing.T) {
	g := NewGenerator(WithSeed(1))

	_, err := g.Generate(context.Background(), Request{
		Category:       models.CategoryCollaboration,
		ParticipantIDs: []string{"solo"},
	})
	assert.ErrorIs(t, err, ErrInsufficientParticipants)

	// Duplicates do not count twice.
	_, err = g.Generate(context.Background(), Request{
		Category:       models.CategoryCollaboration,
		ParticipantIDs: []string{"solo", "solo"},
	})
	assert.ErrorIs(t, err, ErrInsufficientParticipants)

	_, err = g.Generate(context.Background(), Request{Category: models.CategoryCoding})
	assert.ErrorIs(t, err, ErrInsufficientParticipants)
}

func TestGenerate_SingleAgent(t *testing.T) {
	g := NewGenerator(WithSeed(7))
	sc, err := g.Generate(context.Background(), Request{
		Category:       models.CategorySecurity,
		Tier:           models.TierAdvanced,
		Multiplier:     models.MultiplierX3,
		ParticipantIDs: []string{"agent-1"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, sc.ID)
	assert.Equal(t, models.CategorySecurity, sc.Category)
	assert.Equal(t, models.TierAdvanced, sc.Tier)
	assert.Len(t, sc.Requirements, 3)
	assert.Equal(t, DefaultCatalog()[models.CategorySecurity].Criteria, sc.SuccessCriteria)
	assert.Empty(t, sc.Phases)
	assert.False(t, sc.Generic)
	assert.Equal(t, TimeBudget(models.TierAdvanced, models.MultiplierX3), sc.TimeBudget)
	assert.Contains(t, sc.Description, sc.Requirements[0])
}

func TestGenerate_KnowledgeProfile(t *testing.T) {
	src := knowledge.NewStaticSource(map[string][]string{
		"coding": {"generics", "iterators", "arenas"},
	})
	g := NewGenerator(WithSeed(3), WithKnowledgeSource(src))

	sc, err := g.Generate(context.Background(), Request{
		Category:       models.CategoryCoding,
		Tier:           models.TierBasic,
		Multiplier:     models.MultiplierX1,
		ParticipantIDs: []string{"agent-1"},
		Knowledge: models.KnowledgeProfile{
			Strengths:  []models.Category{models.CategorySecurity, models.CategoryTesting, models.CategoryDebugging},
			Weaknesses: []models.Category{models.CategoryPerformance, models.CategoryArchitecture, models.CategoryInnovation},
		},
	})
	require.NoError(t, err)

	var strength, weakness, topic int
	for _, r := range sc.Requirements {
		switch {
		case hasPrefix(r, "Strength challenge: "):
			strength++
		case hasPrefix(r, "Improvement focus: "):
			weakness++
		case hasPrefix(r, "Integrate your knowledge of "):
			topic++
		}
	}
	assert.Equal(t, 2, strength)
	assert.Equal(t, 2, weakness)
	assert.Equal(t, 2, topic)
	assert.Len(t, sc.Topics, 2)
	assert.Contains(t, sc.SuccessCriteria, DefaultCatalog()[models.CategoryPerformance].Criteria[0])
}

func TestGenerate_KnowledgeSourceFailureDegrades(t *testing.T) {
	src := &failingSource{}
	g := NewGenerator(WithSeed(3), WithKnowledgeSource(src))

	sc, err := g.Generate(context.Background(), Request{
		Category:       models.CategoryPerformance,
		ParticipantIDs: []string{"agent-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
	assert.Empty(t, sc.Topics)
	assert.False(t, sc.Generic)
}

func TestGenerate_MissingTemplateFallsBackToGeneric(t *testing.T) {
	catalog := DefaultCatalog()
	delete(catalog, models.CategoryInnovation)
	g := NewGenerator(WithSeed(1), WithCatalog(catalog))

	sc, err := g.Generate(context.Background(), Request{
		Category:       models.CategoryInnovation,
		ParticipantIDs: []string{"agent-1"},
	})
	require.NoError(t, err)
	assert.True(t, sc.Generic)
	assert.NotEmpty(t, sc.Requirements)
	assert.NotEmpty(t, sc.SuccessCriteria)
}

func TestGenerate_AdvancedCriteria(t *testing.T) {
	g := NewGenerator(WithSeed(1))
	sc, err := g.Generate(context.Background(), Request{
		Category:       models.CategoryTesting,
		Tier:           models.TierExpert,
		Multiplier:     models.MultiplierX4,
		ParticipantIDs: []string{"agent-1"},
	})
	require.NoError(t, err)
	for _, c := range AdvancedCriteria {
		assert.Contains(t, sc.SuccessCriteria, c)
	}
}

func TestGenerate_CollaborativePlan(t *testing.T) {
	g := NewGenerator(WithSeed(9))
	sc, err := g.Generate(context.Background(), Request{
		Category:       models.CategoryCollaboration,
		Tier:           models.TierIntermediate,
		Multiplier:     models.MultiplierX2,
		ParticipantIDs: []string{"a", "b", "c"},
	})
	require.NoError(t, err)
	require.True(t, sc.Collaborative())
	require.Len(t, sc.Phases, 4)

	var total time.Duration
	for i, p := range sc.Phases {
		assert.Equal(t, models.CollaborativePhases[i], p.Phase)
		assert.NotEmpty(t, p.Instructions)
		assert.Positive(t, p.Budget)
		total += p.Budget
	}
	assert.Equal(t, sc.TimeBudget, total)
	for _, c := range CollaborationCriteria {
		assert.Contains(t, sc.SuccessCriteria, c)
	}
}

func TestGenerate_GroupInOtherCategoryGetsPhases(t *testing.T) {
	g := NewGenerator(WithSeed(9))
	sc, err := g.Generate(context.Background(), Request{
		Category:       models.CategoryArchitecture,
		ParticipantIDs: []string{"a", "b"},
	})
	require.NoError(t, err)
	assert.Len(t, sc.Phases, 4)
}

func TestTimeBudget(t *testing.T) {
	assert.Equal(t, 30*time.Minute, TimeBudget(models.TierBasic, models.MultiplierX1))
	assert.Equal(t, 180*time.Minute, TimeBudget(models.TierLegendary, models.MultiplierX1))
	assert.Equal(t, 540*time.Minute, TimeBudget(models.TierLegendary, models.MultiplierX6))
	assert.Equal(t, 42*time.Minute, TimeBudget(models.TierBasic, models.MultiplierX2))

	prev := time.Duration(0)
	for _, tier := range models.Tiers {
		d := TimeBudget(tier, models.MultiplierX1)
		assert.Greater(t, d, prev)
		prev = d
	}
}

func TestPhaseBudgets(t *testing.T) {
	b := PhaseBudgets(100 * time.Minute)
	assert.Equal(t, 15*time.Minute, b[models.PhasePlanning])
	assert.Equal(t, 50*time.Minute, b[models.PhaseDevelopment])
	assert.Equal(t, 20*time.Minute, b[models.PhaseIntegration])
	assert.Equal(t, 15*time.Minute, b[models.PhaseEvaluation])
}

func TestRender(t *testing.T) {
	g := NewGenerator(WithSeed(2))
	sc, err := g.Generate(context.Background(), Request{
		Category:       models.CategoryCollaboration,
		ParticipantIDs: []string{"a", "b"},
	})
	require.NoError(t, err)

	prompt := Render(sc)
	assert.Contains(t, prompt, sc.Title)
	for _, c := range sc.SuccessCriteria {
		assert.Contains(t, prompt, c)
	}

	phase := RenderPhase(sc, sc.Phases[1], []Contribution{
		{AgentID: "a", Response: models.PhaseResponse{Phase: models.PhasePlanning, Text: "I take the API"}},
		{AgentID: "b", Response: models.PhaseResponse{Phase: models.PhasePlanning, Error: "boom"}},
	})
	assert.Contains(t, phase, "I take the API")
	assert.Contains(t, phase, "development")
	assert.NotContains(t, phase, "boom")
}

func hasPrefix(s, p string) bool { return len(s) >= len(p) && s[:len(p)] == p }
