package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/jordanhubbard/gauntlet/internal/scenario"
	"github.com/jordanhubbard/gauntlet/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// runSingle asks every participant once with the full prompt.
func (c *Coordinator) runSingle(ctx, parent context.Context, sc *models.TestScenario, ex *models.TestExecution, responders Resolver) (models.ExecutionStatus, string) {
	prompt := scenario.Render(sc)
	rc := c.respondContext(sc, ex, deadlineOf(ctx))

	var mu sync.Mutex
	var g errgroup.Group
	for _, r := range ex.Responses {
		slot := r
		g.Go(func() error {
			start := c.now()
			text, err := c.resolveAndCall(ctx, responders, slot.AgentID, prompt, rc)

			mu.Lock()
			defer mu.Unlock()
			slot.Duration = c.now().Sub(start)
			if err != nil {
				slot.Error = err.Error()
				slot.TimedOut = errors.Is(err, context.DeadlineExceeded)
				return nil
			}
			slot.Text = text
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range ex.Responses {
		if r.Error != "" {
			failed++
		}
	}
	if failed > 0 {
		if status, reason, done := outcome(ctx, parent); done {
			if status == models.ExecutionTimedOut {
				for _, r := range ex.Responses {
					if r.Text == "" {
						r.TimedOut = true
					}
				}
			}
			return status, reason
		}
	}
	if failed == len(ex.Responses) {
		return models.ExecutionFailed, "no participant responded"
	}
	return models.ExecutionCompleted, ""
}

// runCollaborative runs the phases in order. Within a phase every participant
// is asked in parallel and the phase ends when all have answered or the
// phase budget runs out.
func (c *Coordinator) runCollaborative(ctx, parent context.Context, sc *models.TestScenario, ex *models.TestExecution, responders Resolver) (models.ExecutionStatus, string) {
	var transcript []scenario.Contribution
	n := len(ex.Responses)

	for _, plan := range sc.Phases {
		if status, reason, done := outcome(ctx, parent); done {
			return c.finishCollaborative(ex, status, reason)
		}

		phaseCtx, cancel := context.WithTimeout(ctx, c.scale(plan.Budget))
		prompt := scenario.RenderPhase(sc, plan, transcript)
		rc := c.respondContext(sc, ex, deadlineOf(phaseCtx))
		rc.Phase = plan.Phase
		rc.Peers = sc.ParticipantIDs

		results := make([]models.PhaseResponse, n)
		var g errgroup.Group
		for i, r := range ex.Responses {
			agentID := r.AgentID
			g.Go(func() error {
				start := c.now()
				text, err := c.resolveAndCall(phaseCtx, responders, agentID, prompt, rc)
				res := models.PhaseResponse{Phase: plan.Phase, Text: text, Duration: c.now().Sub(start)}
				if err != nil {
					res.Text = ""
					res.Error = err.Error()
					res.TimedOut = errors.Is(err, context.DeadlineExceeded)
				}
				results[i] = res
				return nil
			})
		}
		_ = g.Wait()
		cancel()

		failures := 0
		for i, res := range results {
			r := ex.Responses[i]
			r.Phases = append(r.Phases, res)
			r.Duration += res.Duration
			if res.Failed() {
				failures++
				continue
			}
			transcript = append(transcript, scenario.Contribution{AgentID: r.AgentID, Response: res})
		}

		c.logger.Debug("phase finished",
			zap.String("execution_id", ex.ID),
			zap.String("phase", string(plan.Phase)),
			zap.Int("failures", failures),
			zap.Int("participants", n))

		if failures > 0 {
			if status, reason, done := outcome(ctx, parent); done {
				return c.finishCollaborative(ex, status, reason)
			}
		}
		if failures*2 > n {
			ex.FailedPhase = plan.Phase
			return c.finishCollaborative(ex, models.ExecutionFailed, "majority of participants failed the "+string(plan.Phase)+" phase")
		}
	}
	return c.finishCollaborative(ex, models.ExecutionCompleted, "")
}

func (c *Coordinator) finishCollaborative(ex *models.TestExecution, status models.ExecutionStatus, reason string) (models.ExecutionStatus, string) {
	for _, r := range ex.Responses {
		r.Text = r.CombinedText()
		if r.Text == "" {
			if status == models.ExecutionTimedOut {
				r.TimedOut = true
			}
			if r.Error == "" && len(r.Phases) > 0 {
				r.Error = r.Phases[len(r.Phases)-1].Error
			}
		}
	}
	return status, reason
}

func (c *Coordinator) resolveAndCall(ctx context.Context, responders Resolver, agentID, prompt string, rc RespondContext) (string, error) {
	if responders == nil {
		return "", ErrNoResponder
	}
	resp, err := responders.ResponderFor(agentID)
	if err != nil {
		return "", err
	}
	return c.call(ctx, resp, agentID, prompt, rc)
}
