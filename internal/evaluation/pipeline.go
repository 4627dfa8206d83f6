package evaluation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jordanhubbard/gauntlet/internal/provider"
	"github.com/jordanhubbard/gauntlet/pkg/config"
	"github.com/jordanhubbard/gauntlet/pkg/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	baseThreshold      = 70.0
	thresholdFloor     = 60.0
	thresholdWindow    = 5
	improvementCutoff  = 60.0
	bonusPerOverlap    = 5.0
	maxLearningBonus   = 15.0
	defaultCallTimeout = 60 * time.Second
)

// RetryPolicy bounds evaluator attempts.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	Multiplier     float64
	CallTimeout    time.Duration
}

// DefaultRetryPolicy retries twice, after 200ms and 800ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     2,
		InitialBackoff: 200 * time.Millisecond,
		Multiplier:     4,
		CallTimeout:    defaultCallTimeout,
	}
}

// RetryPolicyFromConfig maps the evaluation config section.
func RetryPolicyFromConfig(c config.EvaluationConfig) RetryPolicy {
	p := DefaultRetryPolicy()
	if c.MaxRetries >= 0 {
		p.MaxRetries = c.MaxRetries
	}
	if c.InitialBackoff > 0 {
		p.InitialBackoff = c.InitialBackoff
	}
	if c.BackoffMultiplier >= 1 {
		p.Multiplier = c.BackoffMultiplier
	}
	if c.CallTimeout > 0 {
		p.CallTimeout = c.CallTimeout
	}
	return p
}

// Pipeline turns executions into evaluation results. A nil evaluator means
// every criterion is scored by the heuristic.
type Pipeline struct {
	evaluator Evaluator
	retry     RetryPolicy
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(r RetryPolicy) Option { return func(p *Pipeline) { p.retry = r } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(p *Pipeline) { p.logger = l } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(p *Pipeline) { p.now = now } }

// NewPipeline creates a pipeline around ev.
func NewPipeline(ev Evaluator, opts ...Option) *Pipeline {
	p := &Pipeline{
		evaluator: ev,
		retry:     DefaultRetryPolicy(),
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// EvaluateAll scores every participant of ex. profiles supplies each
// agent's state before this test; a missing profile is treated as new.
// Results follow the order of ex.Responses.
func (p *Pipeline) EvaluateAll(ctx context.Context, sc *models.TestScenario, ex *models.TestExecution, profiles map[string]*models.AgentProfile) []*models.EvaluationResult {
	results := make([]*models.EvaluationResult, len(ex.Responses))
	var g errgroup.Group
	for i, r := range ex.Responses {
		g.Go(func() error {
			results[i] = p.Evaluate(ctx, sc, ex, r, profiles[r.AgentID])
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Evaluate scores one participant's response. It always returns a result.
func (p *Pipeline) Evaluate(ctx context.Context, sc *models.TestScenario, ex *models.TestExecution, resp *models.ParticipantResponse, profile *models.AgentProfile) *models.EvaluationResult {
	agentID := ""
	if resp != nil {
		agentID = resp.AgentID
	}
	if profile == nil {
		profile = models.NewAgentProfile(agentID)
	}

	ctx, span := otel.Tracer("gauntlet/evaluation").Start(ctx, "evaluation.evaluate")
	defer span.End()
	span.SetAttributes(attribute.String("agent.id", agentID), attribute.String("scenario.id", sc.ID))

	result := &models.EvaluationResult{
		AgentID:     agentID,
		ScenarioID:  sc.ID,
		ExecutionID: ex.ID,
		Criteria:    make([]models.CriterionScore, 0, len(sc.SuccessCriteria)),
		Threshold:   Threshold(profile),
	}

	text := resp.CombinedText()
	empty := strings.TrimSpace(text) == ""
	if empty {
		reason := "no response"
		if resp != nil && resp.TimedOut {
			reason = "no response before the deadline"
		}
		for _, c := range sc.SuccessCriteria {
			result.Criteria = append(result.Criteria, models.CriterionScore{Criterion: c, Score: 0, Feedback: reason})
		}
	} else {
		for _, c := range sc.SuccessCriteria {
			cs := p.scoreCriterion(ctx, sc, c, text, profile.History)
			if cs.Heuristic {
				result.LowConfidence = true
			}
			result.Criteria = append(result.Criteria, cs)
		}
	}

	if !empty {
		result.LearningBonus = LearningBonus(sc.SuccessCriteria, profile)
	}
	result.AggregateScore = clamp(mean(result.Criteria) + result.LearningBonus)
	result.Passed = result.AggregateScore >= result.Threshold
	for _, cs := range result.Criteria {
		if cs.Score < improvementCutoff {
			result.ImprovementAreas = append(result.ImprovementAreas, models.ImprovementArea{
				Criterion:  cs.Criterion,
				Score:      cs.Score,
				Suggestion: Suggestion(sc.Category, cs.Criterion),
			})
		}
	}
	result.EvaluatedAt = p.now()

	span.SetAttributes(
		attribute.Float64("score", result.AggregateScore),
		attribute.Bool("passed", result.Passed),
		attribute.Bool("low_confidence", result.LowConfidence))
	p.logger.Debug("response evaluated",
		zap.String("agent_id", agentID),
		zap.String("scenario_id", sc.ID),
		zap.Float64("score", result.AggregateScore),
		zap.Float64("threshold", result.Threshold),
		zap.Bool("passed", result.Passed),
		zap.Bool("low_confidence", result.LowConfidence))
	return result
}

func (p *Pipeline) scoreCriterion(ctx context.Context, sc *models.TestScenario, criterion, text string, history []models.HistoryEntry) models.CriterionScore {
	if p.evaluator != nil {
		req := ScoreRequest{Criterion: criterion, Response: text, Scenario: sc, History: history}
		score, feedback, err := p.scoreWithRetry(ctx, req)
		if err == nil {
			return models.CriterionScore{Criterion: criterion, Score: clamp(score), Feedback: feedback}
		}
		p.logger.Warn("evaluator failed, using heuristic",
			zap.String("scenario_id", sc.ID),
			zap.String("criterion", criterion),
			zap.Error(err))
	}
	score, feedback := HeuristicScore(criterion, text, sc.Category)
	return models.CriterionScore{Criterion: criterion, Score: score, Feedback: feedback, Heuristic: true}
}

type verdict struct {
	score    float64
	feedback string
}

func (p *Pipeline) scoreWithRetry(ctx context.Context, req ScoreRequest) (float64, string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.retry.InitialBackoff
	b.Multiplier = p.retry.Multiplier
	b.RandomizationFactor = 0
	b.MaxInterval = time.Minute

	v, err := backoff.Retry(ctx, func() (verdict, error) {
		callCtx, cancel := context.WithTimeout(ctx, p.retry.CallTimeout)
		defer cancel()
		score, feedback, err := p.evaluator.Score(callCtx, req)
		if err != nil {
			var se *provider.StatusError
			if errors.As(err, &se) && !se.Retryable() {
				return verdict{}, backoff.Permanent(err)
			}
			return verdict{}, err
		}
		return verdict{score: score, feedback: feedback}, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.retry.MaxRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			p.logger.Debug("retrying evaluator", zap.Error(err), zap.Duration("in", next))
		}),
	)
	if err != nil {
		return 0, "", errors.Join(ErrEvaluatorUnavailable, err)
	}
	return v.score, v.feedback, nil
}

// Threshold is the pass mark for an agent: 70 lowered by up to 10 points by
// the pass rate of the last five tests, never below 60.
func Threshold(profile *models.AgentProfile) float64 {
	rate, ok := profile.SuccessRate(thresholdWindow)
	if !ok {
		return baseThreshold
	}
	return max(thresholdFloor, baseThreshold-min(10, 10*rate))
}

// LearningBonus rewards scenarios that revisit earlier failures: five points
// per criterion overlapping a failed test's improvement areas, at most 15.
func LearningBonus(criteria []string, profile *models.AgentProfile) float64 {
	var failures []string
	for _, h := range profile.History {
		if !h.Passed {
			failures = append(failures, h.ImprovementAreas...)
		}
	}
	if len(failures) == 0 {
		return 0
	}
	overlaps := 0
	for _, c := range criteria {
		if overlapsFailure(c, failures) {
			overlaps++
		}
	}
	return min(maxLearningBonus, bonusPerOverlap*float64(overlaps))
}

func mean(scores []models.CriterionScore) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s.Score
	}
	return sum / float64(len(scores))
}
