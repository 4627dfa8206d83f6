// Package gauntlet runs the full test pipeline: pick a difficulty, generate a
// scenario, dispatch it, score the answers and record the outcome.
package gauntlet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jordanhubbard/gauntlet/internal/difficulty"
	"github.com/jordanhubbard/gauntlet/internal/dispatch"
	"github.com/jordanhubbard/gauntlet/internal/evaluation"
	"github.com/jordanhubbard/gauntlet/internal/learning"
	"github.com/jordanhubbard/gauntlet/internal/messagebus"
	"github.com/jordanhubbard/gauntlet/internal/metrics"
	"github.com/jordanhubbard/gauntlet/internal/scenario"
	"github.com/jordanhubbard/gauntlet/pkg/messages"
	"github.com/jordanhubbard/gauntlet/pkg/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Errors returned synchronously by GenerateAndRun. Everything else ends up
// in the execution status or the evaluation result.
var (
	ErrUnknownCategory          = scenario.ErrUnknownCategory
	ErrInsufficientParticipants = scenario.ErrInsufficientParticipants
	ErrConcurrentExecution      = dispatch.ErrConcurrentExecution
	// ErrPersistenceFailure means a result could not be durably recorded
	// after retrying. The update for that agent was discarded.
	ErrPersistenceFailure = errors.New("persistence failure")
	// ErrProfileNotFound is returned by GetProfile for an agent never tested.
	ErrProfileNotFound = learning.ErrProfileNotFound
)

const (
	eventSource           = "gauntlet"
	defaultPersistRetries = 3
	defaultPersistBackoff = 100 * time.Millisecond
	persistTimeout        = 30 * time.Second
)

// Summary is the outcome of one GenerateAndRun call.
type Summary struct {
	Scenario  *models.TestScenario       `json:"scenario"`
	Execution *models.TestExecution      `json:"execution"`
	Results   []*models.EvaluationResult `json:"results"`
	// Profiles holds the stored state of every participant after the run.
	Profiles map[string]*models.AgentProfile `json:"profiles"`
	// Advanced lists the agents whose tier went up.
	Advanced []string `json:"advanced,omitempty"`
	// LeveledUp lists the agents whose level went up.
	LeveledUp []string `json:"leveled_up,omitempty"`
}

// Result returns the evaluation of agentID, or nil.
func (s *Summary) Result(agentID string) *models.EvaluationResult {
	for _, r := range s.Results {
		if r.AgentID == agentID {
			return r
		}
	}
	return nil
}

// Engine wires the pipeline stages together.
type Engine struct {
	store      learning.Store
	responders dispatch.Resolver

	controller  *difficulty.Controller
	generator   *scenario.Generator
	coordinator *dispatch.Coordinator
	pipeline    *evaluation.Pipeline
	updater     *learning.Updater

	publisher      messagebus.Publisher
	metrics        *metrics.Metrics
	logger         *zap.Logger
	persistRetries int
	persistBackoff time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithController replaces the default difficulty rules.
func WithController(c *difficulty.Controller) Option { return func(e *Engine) { e.controller = c } }

// WithGenerator replaces the default scenario generator.
func WithGenerator(g *scenario.Generator) Option { return func(e *Engine) { e.generator = g } }

// WithCoordinator replaces the default dispatch coordinator.
func WithCoordinator(c *dispatch.Coordinator) Option { return func(e *Engine) { e.coordinator = c } }

// WithPipeline replaces the heuristic-only evaluation pipeline.
func WithPipeline(p *evaluation.Pipeline) Option { return func(e *Engine) { e.pipeline = p } }

// WithPublisher publishes results and events. Publish failures are logged only.
func WithPublisher(p messagebus.Publisher) Option { return func(e *Engine) { e.publisher = p } }

// WithMetrics records pipeline metrics.
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithPersistenceRetry sets how often a failed store call is retried and
// the first backoff interval.
func WithPersistenceRetry(retries int, initial time.Duration) Option {
	return func(e *Engine) {
		if retries >= 0 {
			e.persistRetries = retries
		}
		if initial > 0 {
			e.persistBackoff = initial
		}
	}
}

// New creates an engine over store that reaches agents through responders.
func New(store learning.Store, responders dispatch.Resolver, opts ...Option) *Engine {
	e := &Engine{
		store:          store,
		responders:     responders,
		logger:         zap.NewNop(),
		persistRetries: defaultPersistRetries,
		persistBackoff: defaultPersistBackoff,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.controller == nil {
		e.controller = difficulty.NewController(difficulty.DefaultRules())
	}
	if e.generator == nil {
		e.generator = scenario.NewGenerator(scenario.WithLogger(e.logger))
	}
	if e.coordinator == nil {
		e.coordinator = dispatch.NewCoordinator(dispatch.WithLogger(e.logger))
	}
	if e.pipeline == nil {
		e.pipeline = evaluation.NewPipeline(nil, evaluation.WithLogger(e.logger))
	}
	e.updater = learning.NewUpdater(e.controller)
	return e
}

// Coordinator exposes the dispatch coordinator, e.g. to check which agents are busy.
func (e *Engine) Coordinator() *dispatch.Coordinator { return e.coordinator }

// GenerateAndRun tests agentIDs in category and records the outcome.
//
// It returns ErrUnknownCategory or ErrInsufficientParticipants before
// anything is dispatched, and a ConcurrentExecutionError when a participant
// is already being tested. When a result cannot be stored the summary is
// still returned together with an error wrapping ErrPersistenceFailure.
func (e *Engine) GenerateAndRun(ctx context.Context, category models.Category, agentIDs []string) (summary *Summary, err error) {
	ctx, span := otel.Tracer("gauntlet/engine").Start(ctx, "gauntlet.generate_and_run")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.recordPipelineError(err)
		}
		span.End()
	}()

	category = models.NormalizeCategory(string(category))
	participants := participantIDs(agentIDs)
	span.SetAttributes(
		attribute.String("category", string(category)),
		attribute.StringSlice("participants", participants),
	)
	if err := validate(category, participants); err != nil {
		return nil, err
	}

	lease, err := e.coordinator.Reserve(participants...)
	if err != nil {
		return nil, err
	}
	e.trackInFlight()
	defer func() {
		lease.Release()
		e.trackInFlight()
	}()

	log := e.logger.With(zap.String("category", string(category)), zap.Strings("participants", participants))

	profiles := make([]*models.AgentProfile, 0, len(participants))
	byAgent := make(map[string]*models.AgentProfile, len(participants))
	for _, id := range participants {
		p, err := e.loadProfile(ctx, id)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
		byAgent[id] = p
	}

	tier, mult := e.controller.NextGroupTier(profiles)
	sc, err := e.generator.Generate(ctx, scenario.Request{
		Category:       category,
		Tier:           tier,
		Multiplier:     mult,
		ParticipantIDs: participants,
		Knowledge:      models.MergeKnowledge(profiles...),
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("scenario.id", sc.ID),
		attribute.String("tier", string(sc.Tier)),
		attribute.Int("multiplier", int(sc.Multiplier)),
	)
	log.Info("scenario generated",
		zap.String("scenario_id", sc.ID),
		zap.String("tier", string(sc.Tier)),
		zap.Stringer("multiplier", sc.Multiplier))

	ex, err := e.coordinator.Run(ctx, lease, sc, e.responders)
	if err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}
	if e.metrics != nil {
		e.metrics.RecordExecution(sc, ex)
	}

	results := e.pipeline.EvaluateAll(ctx, sc, ex, byAgent)

	summary = &Summary{
		Scenario:  sc,
		Execution: ex,
		Results:   results,
		Profiles:  byAgent,
	}

	// Recording must not be cut short by the caller giving up after dispatch.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	var failed []error
	for _, res := range results {
		change, err := e.record(persistCtx, byAgent[res.AgentID], sc, ex, res)
		if err != nil {
			log.Error("failed to record result", zap.String("agent_id", res.AgentID), zap.Error(err))
			failed = append(failed, fmt.Errorf("agent %s: %w", res.AgentID, err))
			e.publishEvent(persistCtx, messages.SystemError(eventSource, "failed to record result", map[string]interface{}{
				"agent_id":     res.AgentID,
				"scenario_id":  sc.ID,
				"execution_id": ex.ID,
				"error":        err.Error(),
			}))
			continue
		}
		summary.Profiles[res.AgentID] = change.Profile
		if change.Advanced() {
			summary.Advanced = append(summary.Advanced, res.AgentID)
		}
		if change.LeveledUp() {
			summary.LeveledUp = append(summary.LeveledUp, res.AgentID)
		}
		if e.metrics != nil {
			e.metrics.RecordResult(sc, res)
			if change.Advanced() {
				e.metrics.RecordAdvance(change.Profile.CurrentTier)
			}
			if change.LeveledUp() {
				e.metrics.LevelUps.Inc()
			}
		}
		e.publishResult(persistCtx, sc, ex, res, change)
	}
	e.publishEvent(persistCtx, messages.ExecutionFinished(ex.ID, sc.ID, string(ex.Status), eventSource))

	if len(failed) > 0 {
		return summary, fmt.Errorf("%w: %w", ErrPersistenceFailure, errors.Join(failed...))
	}
	return summary, nil
}

// GetProfile returns the stored profile of agentID.
func (e *Engine) GetProfile(ctx context.Context, agentID string) (*models.AgentProfile, error) {
	return e.store.Load(ctx, agentID)
}

// Records returns the newest archived executions of agentID.
func (e *Engine) Records(ctx context.Context, agentID string, limit int) ([]*models.ExecutionRecord, error) {
	return e.store.Records(ctx, agentID, limit)
}

func validate(category models.Category, participants []string) error {
	if !category.Supported() {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	if len(participants) == 0 {
		return fmt.Errorf("%w: no participants", ErrInsufficientParticipants)
	}
	if category.RequiresGroup() && len(participants) < 2 {
		return fmt.Errorf("%w: %s needs at least 2 participants, got %d",
			ErrInsufficientParticipants, category, len(participants))
	}
	return nil
}

// participantIDs trims, drops empty ids and removes duplicates, keeping order.
func participantIDs(ids []string) []string {
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

func (e *Engine) retryOptions() []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.persistBackoff
	b.MaxInterval = 5 * time.Second
	return []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(e.persistRetries + 1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			e.logger.Warn("retrying store call", zap.Error(err), zap.Duration("in", next))
		}),
	}
}

func (e *Engine) loadProfile(ctx context.Context, agentID string) (*models.AgentProfile, error) {
	p, err := backoff.Retry(ctx, func() (*models.AgentProfile, error) {
		return learning.LoadOrCreate(ctx, e.store, agentID)
	}, e.retryOptions()...)
	if err != nil {
		return nil, fmt.Errorf("%w: load profile %s: %w", ErrPersistenceFailure, agentID, err)
	}
	return p, nil
}

// record folds res into profile and commits it with the archive record.
// An already recorded scenario counts as success and returns the stored profile.
func (e *Engine) record(ctx context.Context, profile *models.AgentProfile, sc *models.TestScenario, ex *models.TestExecution, res *models.EvaluationResult) (learning.Change, error) {
	change, applied := e.updater.Apply(profile, sc, res)
	if !applied {
		return change, nil
	}
	rec := &models.ExecutionRecord{
		ScenarioID: sc.ID,
		AgentID:    res.AgentID,
		Scenario:   sc,
		Execution:  ex,
		Result:     res,
		RecordedAt: change.Profile.UpdatedAt,
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := e.store.Commit(ctx, change.Profile, rec)
		if errors.Is(err, learning.ErrAlreadyRecorded) {
			return struct{}{}, nil
		}
		return struct{}{}, err
	}, e.retryOptions()...)
	if err != nil {
		if e.metrics != nil {
			e.metrics.PersistenceFailures.Inc()
		}
		return learning.Change{}, err
	}
	return change, nil
}

func (e *Engine) publishResult(ctx context.Context, sc *models.TestScenario, ex *models.TestExecution, res *models.EvaluationResult, change learning.Change) {
	if e.publisher == nil {
		return
	}
	msg := messages.TestResult(sc, ex, res)
	err := e.publisher.PublishResult(ctx, msg)
	if e.metrics != nil {
		e.metrics.RecordEventPublished(msg.Type, err)
	}
	if err != nil {
		e.logger.Warn("failed to publish result", zap.String("agent_id", res.AgentID), zap.Error(err))
	}
	if change.Advanced() {
		e.publishEvent(ctx, messages.AgentAdvanced(res.AgentID,
			string(change.PrevTier), string(change.Profile.CurrentTier), eventSource))
	}
	if change.LeveledUp() {
		e.publishEvent(ctx, messages.AgentLeveled(res.AgentID, change.PrevLevel, change.Profile.Level, eventSource))
	}
}

func (e *Engine) publishEvent(ctx context.Context, ev *messages.EventMessage) {
	if e.publisher == nil {
		return
	}
	err := e.publisher.PublishEvent(ctx, ev.Type, ev)
	if e.metrics != nil {
		e.metrics.RecordEventPublished(ev.Type, err)
	}
	if err != nil {
		e.logger.Warn("failed to publish event", zap.String("event_type", ev.Type), zap.Error(err))
	}
}

func (e *Engine) trackInFlight() {
	if e.metrics != nil {
		e.metrics.AgentsInFlight.Set(float64(e.coordinator.InFlight()))
	}
}

func (e *Engine) recordPipelineError(err error) {
	if e.metrics == nil {
		return
	}
	switch {
	case errors.Is(err, ErrUnknownCategory):
		e.metrics.RecordPipelineError("unknown_category")
	case errors.Is(err, ErrInsufficientParticipants):
		e.metrics.RecordPipelineError("insufficient_participants")
	case errors.Is(err, ErrConcurrentExecution):
		e.metrics.RecordPipelineError("concurrent_execution")
	case errors.Is(err, ErrPersistenceFailure):
		e.metrics.RecordPipelineError("persistence_failure")
	default:
		e.metrics.RecordPipelineError("other")
	}
}
