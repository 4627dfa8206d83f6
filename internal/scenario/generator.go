// Package scenario turns a tier, multiplier and category into a concrete test scenario.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jordanhubbard/gauntlet/internal/knowledge"
	"github.com/jordanhubbard/gauntlet/pkg/models"
	"go.uber.org/zap"
)

var (
	// ErrUnknownCategory is returned for a category outside the supported set.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrInsufficientParticipants is returned when a request has too few participants.
	ErrInsufficientParticipants = errors.New("insufficient participants")
)

const (
	maxStrengthRequirements = 2
	maxWeaknessRequirements = 2
	maxTopicRequirements    = 2
	defaultTrendsTimeout    = 2 * time.Second
)

// Request describes the scenario to build.
type Request struct {
	Category       models.Category
	Tier           models.Tier
	Multiplier     models.Multiplier
	ParticipantIDs []string
	Knowledge      models.KnowledgeProfile
}

// Generator builds scenarios from a catalog and optional knowledge source.
type Generator struct {
	catalog       Catalog
	source        knowledge.Source
	logger        *zap.Logger
	trendsTimeout time.Duration

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithCatalog replaces the built-in templates.
func WithCatalog(c Catalog) Option { return func(g *Generator) { g.catalog = c } }

// WithKnowledgeSource enables topic requirements.
func WithKnowledgeSource(s knowledge.Source) Option { return func(g *Generator) { g.source = s } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(g *Generator) { g.logger = l } }

// WithSeed makes template selection reproducible.
func WithSeed(seed uint64) Option {
	return func(g *Generator) { g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithTrendsTimeout bounds each knowledge source call.
func WithTrendsTimeout(d time.Duration) Option { return func(g *Generator) { g.trendsTimeout = d } }

// NewGenerator creates a generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		catalog:       DefaultCatalog(),
		logger:        zap.NewNop(),
		trendsTimeout: defaultTrendsTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.rng == nil {
		seed := uint64(time.Now().UnixNano())
		g.rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return g
}

// Generate builds a scenario. It fails only for an unsupported category or too
// few participants; missing template content or knowledge source failures
// degrade to simpler scenarios.
func (g *Generator) Generate(ctx context.Context, req Request) (*models.TestScenario, error) {
	category := models.NormalizeCategory(string(req.Category))
	if !category.Supported() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, req.Category)
	}
	participants := dedupe(req.ParticipantIDs)
	if len(participants) == 0 {
		return nil, fmt.Errorf("%w: no participants", ErrInsufficientParticipants)
	}
	if category.RequiresGroup() && len(participants) < 2 {
		return nil, fmt.Errorf("%w: %s needs at least 2 participants, got %d",
			ErrInsufficientParticipants, category, len(participants))
	}

	tier := req.Tier
	if !tier.Valid() {
		tier = models.TierBasic
	}
	mult := models.ClampMultiplier(int(req.Multiplier))

	sc := &models.TestScenario{
		ID:             uuid.NewString(),
		Category:       category,
		Tier:           tier,
		Multiplier:     mult,
		ParticipantIDs: participants,
		TimeBudget:     TimeBudget(tier, mult),
		CreatedAt:      g.now().UTC(),
	}

	tmpl, ok := g.catalog[category]
	if !ok || len(tmpl.Requirements) == 0 || len(tmpl.Criteria) == 0 {
		g.logger.Warn("no usable template, using generic scenario", zap.String("category", string(category)))
		g.fillGeneric(sc)
	} else {
		g.fill(ctx, sc, tmpl, req.Knowledge)
	}

	if len(participants) >= 2 {
		sc.Phases = phasePlan(sc)
		sc.SuccessCriteria = append(sc.SuccessCriteria, CollaborationCriteria...)
	}
	sc.Description = describe(sc)
	return sc, nil
}

func (g *Generator) fill(ctx context.Context, sc *models.TestScenario, tmpl Template, kp models.KnowledgeProfile) {
	sc.Title = fmt.Sprintf("%s (%s, %s)", tmpl.Title, sc.Tier, sc.Multiplier)

	count := 2 + (int(sc.Multiplier)-1)/2
	sc.Requirements = append(sc.Requirements, g.pick(tmpl.Requirements, count)...)

	catalogFor := func(c models.Category) (Template, bool) {
		t, ok := g.catalog[c]
		return t, ok
	}
	for _, c := range limit(kp.Strengths, maxStrengthRequirements) {
		text := "Demonstrate advanced mastery in " + string(c)
		if t, ok := catalogFor(c); ok && t.Strength != "" {
			text = t.Strength
		}
		sc.Requirements = append(sc.Requirements, "Strength challenge: "+text)
	}
	var weaknessCriteria []string
	for _, c := range limit(kp.Weaknesses, maxWeaknessRequirements) {
		text := "Improve your approach to " + string(c)
		if t, ok := catalogFor(c); ok && t.Weakness != "" {
			text = t.Weakness
		}
		sc.Requirements = append(sc.Requirements, "Improvement focus: "+text)
		if t, ok := catalogFor(c); ok && len(t.Criteria) > 0 {
			weaknessCriteria = append(weaknessCriteria, t.Criteria[0])
		}
	}

	topics := g.topics(ctx, sc.Category)
	for _, topic := range limit(topics, maxTopicRequirements) {
		sc.Requirements = append(sc.Requirements, fmt.Sprintf("Integrate your knowledge of %s into the solution", topic))
		sc.Topics = append(sc.Topics, topic)
	}

	sc.SuccessCriteria = append(sc.SuccessCriteria, tmpl.Criteria...)
	for _, c := range weaknessCriteria {
		if !contains(sc.SuccessCriteria, c) {
			sc.SuccessCriteria = append(sc.SuccessCriteria, c)
		}
	}
	if sc.Multiplier >= models.MultiplierX4 {
		sc.SuccessCriteria = append(sc.SuccessCriteria, AdvancedCriteria...)
	}
}

func (g *Generator) fillGeneric(sc *models.TestScenario) {
	sc.Generic = true
	sc.Title = fmt.Sprintf("General %s exercise (%s, %s)", sc.Category, sc.Tier, sc.Multiplier)
	sc.Requirements = []string{
		fmt.Sprintf("Solve a realistic %s problem of your choice appropriate to the %s tier", sc.Category, sc.Tier),
		"Explain the approach and the trade-offs you made",
	}
	sc.SuccessCriteria = []string{
		"Solution addresses the stated problem",
		"Approach and trade-offs are clearly explained",
	}
}

// topics asks the knowledge source for trends. Errors only cost the topic requirements.
func (g *Generator) topics(ctx context.Context, category models.Category) []string {
	if g.source == nil {
		return nil
	}
	tctx, cancel := context.WithTimeout(ctx, g.trendsTimeout)
	defer cancel()
	topics, err := g.source.FetchTrends(tctx, category)
	if err != nil {
		g.logger.Debug("knowledge source unavailable", zap.String("category", string(category)), zap.Error(err))
		return nil
	}
	return g.pick(topics, maxTopicRequirements)
}

// pick returns up to n distinct items in random order.
func (g *Generator) pick(items []string, n int) []string {
	if n > len(items) {
		n = len(items)
	}
	g.mu.Lock()
	perm := g.rng.Perm(len(items))
	g.mu.Unlock()
	out := make([]string, 0, n)
	for _, i := range perm[:n] {
		out = append(out, items[i])
	}
	return out
}

func phasePlan(sc *models.TestScenario) []models.PhasePlan {
	budgets := PhaseBudgets(sc.TimeBudget)
	names := strings.Join(sc.ParticipantIDs, ", ")
	plans := make([]models.PhasePlan, 0, len(models.CollaborativePhases))
	for _, phase := range models.CollaborativePhases {
		p := models.PhasePlan{Phase: phase, Budget: budgets[phase]}
		switch phase {
		case models.PhasePlanning:
			p.Instructions = fmt.Sprintf("Analyze the scenario and propose your approach and the part you will own. Participants: %s.", names)
			p.ExpectedOutput = "Individual analysis and proposed division of work"
		case models.PhaseDevelopment:
			p.Instructions = "Implement your part of the agreed plan, noting the interfaces other participants depend on."
			p.ExpectedOutput = "Your contribution with its interfaces described"
		case models.PhaseIntegration:
			p.Instructions = "Combine the contributions into one solution and resolve any mismatches."
			p.ExpectedOutput = "Integrated solution with clear attribution"
		case models.PhaseEvaluation:
			p.Instructions = "Review the integrated solution against every success criterion and propose improvements."
			p.ExpectedOutput = "Validation against criteria and final improvements"
		}
		plans = append(plans, p)
	}
	return plans
}

func describe(sc *models.TestScenario) string {
	var b strings.Builder
	if len(sc.ParticipantIDs) > 1 {
		fmt.Fprintf(&b, "You are working with %d agents: %s.\n", len(sc.ParticipantIDs), strings.Join(sc.ParticipantIDs, ", "))
	}
	fmt.Fprintf(&b, "This is a %s tier %s test at complexity %s. You have %s.\n", sc.Tier, sc.Category, sc.Multiplier, sc.TimeBudget)
	b.WriteString("Your task is to:\n")
	for i, r := range sc.Requirements {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r)
	}
	return strings.TrimRight(b.String(), "\n")
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func limit[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func contains(items []string, s string) bool {
	for _, it := range items {
		if it == s {
			return true
		}
	}
	return false
}
