package models

import (
	"time"
)

// Phase is one step of the collaborative protocol.
type Phase string

const (
	PhasePlanning    Phase = "planning"
	PhaseDevelopment Phase = "development"
	PhaseIntegration Phase = "integration"
	PhaseEvaluation  Phase = "evaluation"
)

// CollaborativePhases is the fixed order phases run in.
var CollaborativePhases = []Phase{
	PhasePlanning,
	PhaseDevelopment,
	PhaseIntegration,
	PhaseEvaluation,
}

// PhasePlan describes one collaborative phase.
type PhasePlan struct {
	Phase          Phase         `json:"phase"`
	Instructions   string        `json:"instructions"`
	ExpectedOutput string        `json:"expected_output"`
	Budget         time.Duration `json:"budget"`
}

// TestScenario is an immutable test definition.
type TestScenario struct {
	ID              string        `json:"id"`
	Category        Category      `json:"category"`
	Tier            Tier          `json:"tier"`
	Multiplier      Multiplier    `json:"multiplier"`
	ParticipantIDs  []string      `json:"participant_ids"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Requirements    []string      `json:"requirements"`
	SuccessCriteria []string      `json:"success_criteria"`
	TimeBudget      time.Duration `json:"time_budget"`
	Phases          []PhasePlan   `json:"phases,omitempty"`
	Topics          []string      `json:"topics,omitempty"`
	Generic         bool          `json:"generic,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// Collaborative reports whether the scenario runs the phased group protocol.
func (s *TestScenario) Collaborative() bool {
	return len(s.ParticipantIDs) >= 2 && len(s.Phases) > 0
}
