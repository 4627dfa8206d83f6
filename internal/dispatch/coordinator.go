// Package dispatch sends scenarios to agents and collects their answers.
//
// The Coordinator enforces one in-flight execution per agent, applies the
// scenario time budget as a hard deadline and runs the phased protocol for
// group scenarios. Responder calls are never retried.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jordanhubbard/gauntlet/pkg/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const minBudget = time.Millisecond

// Observer is notified about every responder call.
type Observer interface {
	ObserveResponse(agentID string, phase models.Phase, d time.Duration, err error)
}

// Coordinator dispatches scenarios.
type Coordinator struct {
	mu       sync.Mutex
	inflight map[string]string // agent id -> lease id

	logger      *zap.Logger
	observer    Observer
	budgetScale float64
	now         func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(c *Coordinator) { c.logger = l } }

// WithObserver receives per-call timings.
func WithObserver(o Observer) Option { return func(c *Coordinator) { c.observer = o } }

// WithBudgetScale multiplies every time budget. Values <= 0 are ignored.
func WithBudgetScale(s float64) Option {
	return func(c *Coordinator) {
		if s > 0 {
			c.budgetScale = s
		}
	}
}

// NewCoordinator creates a coordinator.
func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		inflight:    make(map[string]string),
		logger:      zap.NewNop(),
		budgetScale: 1,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lease is the per-agent single-flight claim for a set of agents.
type Lease struct {
	id     string
	agents []string
	c      *Coordinator
	once   sync.Once
}

// ID identifies the lease.
func (l *Lease) ID() string { return l.id }

// Release frees every agent in the lease. Safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.c.mu.Lock()
		defer l.c.mu.Unlock()
		for _, id := range l.agents {
			if l.c.inflight[id] == l.id {
				delete(l.c.inflight, id)
			}
		}
	})
}

func (l *Lease) holds(agentIDs []string) bool {
	l.c.mu.Lock()
	defer l.c.mu.Unlock()
	for _, id := range agentIDs {
		if l.c.inflight[id] != l.id {
			return false
		}
	}
	return true
}

// Reserve claims every agent or none. A busy agent yields a ConcurrentExecutionError.
func (c *Coordinator) Reserve(agentIDs ...string) (*Lease, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var busy []string
	for _, id := range agentIDs {
		if _, ok := c.inflight[id]; ok {
			busy = append(busy, id)
		}
	}
	if len(busy) > 0 {
		return nil, &ConcurrentExecutionError{AgentIDs: busy}
	}

	lease := &Lease{id: uuid.NewString(), agents: append([]string(nil), agentIDs...), c: c}
	for _, id := range agentIDs {
		c.inflight[id] = lease.id
	}
	return lease, nil
}

// Busy reports whether agentID holds a lease.
func (c *Coordinator) Busy(agentID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[agentID]
	return ok
}

// InFlight counts agents currently leased.
func (c *Coordinator) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// Execute reserves the participants, runs the scenario and releases them.
func (c *Coordinator) Execute(ctx context.Context, sc *models.TestScenario, responders Resolver) (*models.TestExecution, error) {
	lease, err := c.Reserve(sc.ParticipantIDs...)
	if err != nil {
		return nil, err
	}
	defer lease.Release()
	return c.Run(ctx, lease, sc, responders)
}

// Run executes sc under a lease the caller already holds. The returned
// execution is always terminal; the error is only for an invalid lease.
func (c *Coordinator) Run(ctx context.Context, lease *Lease, sc *models.TestScenario, responders Resolver) (*models.TestExecution, error) {
	if lease == nil || !lease.holds(sc.ParticipantIDs) {
		return nil, ErrLeaseNotHeld
	}

	ctx, span := otel.Tracer("gauntlet/dispatch").Start(ctx, "dispatch.run")
	defer span.End()

	ex := models.NewTestExecution(uuid.NewString(), sc)
	span.SetAttributes(
		attribute.String("scenario.id", sc.ID),
		attribute.String("execution.id", ex.ID),
		attribute.Int("participants", len(sc.ParticipantIDs)),
	)

	log := c.logger.With(zap.String("scenario_id", sc.ID), zap.String("execution_id", ex.ID))
	budget := c.scale(sc.TimeBudget)
	ex.Start(c.now())
	log.Debug("dispatching scenario",
		zap.Strings("participants", sc.ParticipantIDs),
		zap.Duration("budget", budget),
		zap.Bool("collaborative", sc.Collaborative()))

	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	var status models.ExecutionStatus
	var reason string
	if sc.Collaborative() {
		status, reason = c.runCollaborative(runCtx, ctx, sc, ex, responders)
	} else {
		status, reason = c.runSingle(runCtx, ctx, sc, ex, responders)
	}

	if err := ex.Finish(status, reason, c.now()); err != nil {
		log.Error("execution finished twice", zap.Error(err))
	}
	span.SetAttributes(attribute.String("execution.status", string(ex.Status)))
	if ex.Status != models.ExecutionCompleted {
		span.SetStatus(codes.Error, reason)
	}
	log.Info("execution finished",
		zap.String("status", string(ex.Status)),
		zap.String("reason", reason),
		zap.Duration("duration", ex.Duration()))
	return ex, nil
}

// outcome classifies why a run context ended. parent is the caller's context.
func outcome(runCtx, parent context.Context) (models.ExecutionStatus, string, bool) {
	if parent.Err() != nil {
		return models.ExecutionFailed, "cancelled: " + parent.Err().Error(), true
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return models.ExecutionTimedOut, "time budget exceeded", true
	}
	return "", "", false
}

func (c *Coordinator) scale(d time.Duration) time.Duration {
	scaled := time.Duration(float64(d) * c.budgetScale)
	if scaled < minBudget {
		return minBudget
	}
	return scaled
}

// call invokes a responder but returns as soon as ctx is done, so a
// responder that ignores cancellation cannot stall the execution.
func (c *Coordinator) call(ctx context.Context, resp Responder, agentID, prompt string, rc RespondContext) (text string, err error) {
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	start := c.now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("responder panicked: %v", r)}
			}
		}()
		t, e := resp.Respond(ctx, agentID, prompt, rc)
		done <- result{text: t, err: e}
	}()

	select {
	case res := <-done:
		text, err = res.text, res.err
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err == nil && ctx.Err() != nil {
		// Answers that arrive after the deadline do not count.
		text, err = "", ctx.Err()
	}
	if c.observer != nil {
		c.observer.ObserveResponse(agentID, rc.Phase, c.now().Sub(start), err)
	}
	return text, err
}

func (c *Coordinator) respondContext(sc *models.TestScenario, ex *models.TestExecution, deadline time.Time) RespondContext {
	return RespondContext{
		ScenarioID:  sc.ID,
		ExecutionID: ex.ID,
		Category:    sc.Category,
		Tier:        sc.Tier,
		Multiplier:  sc.Multiplier,
		Deadline:    deadline,
	}
}

func deadlineOf(ctx context.Context) time.Time {
	d, _ := ctx.Deadline()
	return d
}
