package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ExecutionStatus tracks a TestExecution through dispatch.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionTimedOut  ExecutionStatus = "timed_out"
)

// Terminal reports whether s is a final status.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionTimedOut
}

// ErrExecutionFinished is returned when a terminal status is set a second time.
var ErrExecutionFinished = errors.New("execution already finished")

// PhaseResponse is one participant's output for one collaborative phase.
type PhaseResponse struct {
	Phase    Phase         `json:"phase"`
	Text     string        `json:"text"`
	Error    string        `json:"error,omitempty"`
	TimedOut bool          `json:"timed_out,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the phase produced no usable answer.
func (r PhaseResponse) Failed() bool {
	return r.Error != "" || r.TimedOut || strings.TrimSpace(r.Text) == ""
}

// ParticipantResponse is everything one agent returned during an execution.
type ParticipantResponse struct {
	AgentID  string          `json:"agent_id"`
	Text     string          `json:"text"`
	Phases   []PhaseResponse `json:"phases,omitempty"`
	Error    string          `json:"error,omitempty"`
	TimedOut bool            `json:"timed_out,omitempty"`
	Duration time.Duration   `json:"duration"`
}

// CombinedText is the text scored for the participant. Collaborative
// answers are joined phase by phase.
func (r *ParticipantResponse) CombinedText() string {
	if r == nil {
		return ""
	}
	if len(r.Phases) == 0 {
		return r.Text
	}
	var b strings.Builder
	for _, p := range r.Phases {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s]\n%s", p.Phase, p.Text)
	}
	return b.String()
}

// TestExecution is the single run of one scenario.
type TestExecution struct {
	ID          string                 `json:"id"`
	ScenarioID  string                 `json:"scenario_id"`
	Status      ExecutionStatus        `json:"status"`
	Responses   []*ParticipantResponse `json:"responses"`
	FailedPhase Phase                  `json:"failed_phase,omitempty"`
	Reason      string                 `json:"reason,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	EndedAt     time.Time              `json:"ended_at"`
}

// NewTestExecution creates a pending execution with one empty response slot per participant.
func NewTestExecution(id string, scenario *TestScenario) *TestExecution {
	ex := &TestExecution{
		ID:         id,
		ScenarioID: scenario.ID,
		Status:     ExecutionPending,
		Responses:  make([]*ParticipantResponse, 0, len(scenario.ParticipantIDs)),
	}
	for _, agentID := range scenario.ParticipantIDs {
		ex.Responses = append(ex.Responses, &ParticipantResponse{AgentID: agentID})
	}
	return ex
}

// Start moves a pending execution to running.
func (e *TestExecution) Start(now time.Time) {
	if e.Status == ExecutionPending {
		e.Status = ExecutionRunning
		e.StartedAt = now
	}
}

// Finish sets the terminal status. It may only succeed once.
func (e *TestExecution) Finish(status ExecutionStatus, reason string, now time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}
	if e.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrExecutionFinished, e.ID, e.Status)
	}
	e.Status = status
	e.Reason = reason
	e.EndedAt = now
	return nil
}

// Response returns the slot for agentID or nil.
func (e *TestExecution) Response(agentID string) *ParticipantResponse {
	for _, r := range e.Responses {
		if r.AgentID == agentID {
			return r
		}
	}
	return nil
}

// Duration is EndedAt-StartedAt once finished.
func (e *TestExecution) Duration() time.Duration {
	if e.EndedAt.IsZero() || e.StartedAt.IsZero() {
		return 0
	}
	return e.EndedAt.Sub(e.StartedAt)
}
