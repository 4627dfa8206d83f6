package models

import (
	"time"
)

// SchemaVersion tags persisted records so stores can migrate old rows.
type SchemaVersion string

const ProfileSchemaVersion SchemaVersion = "1.0"

const (
	// HistoryCapacity bounds AgentProfile.History; the oldest entry is evicted first.
	HistoryCapacity = 50
	// MaxTraits caps Strengths and Weaknesses.
	MaxTraits = 5
	// AppliedCapacity bounds the scenario ids remembered for idempotent updates.
	AppliedCapacity = 200
)

// HistoryEntry is one scored test in an agent's rolling history.
type HistoryEntry struct {
	ScenarioID       string     `json:"scenario_id"`
	Timestamp        time.Time  `json:"timestamp"`
	Category         Category   `json:"category"`
	Tier             Tier       `json:"tier"`
	Multiplier       Multiplier `json:"multiplier"`
	Score            float64    `json:"score"`
	Passed           bool       `json:"passed"`
	ImprovementAreas []string   `json:"improvement_areas,omitempty"`
}

// AgentProfile is the learning state of one agent.
type AgentProfile struct {
	SchemaVersion    SchemaVersion  `json:"schema_version"`
	AgentID          string         `json:"agent_id"`
	Kind             string         `json:"kind,omitempty"`
	Level            int            `json:"level"`
	ExperiencePoints int            `json:"experience_points"`
	CurrentTier      Tier           `json:"current_tier"`
	History          []HistoryEntry `json:"history"`
	Strengths        []Category     `json:"strengths"`
	Weaknesses       []Category     `json:"weaknesses"`
	AppliedScenarios []string       `json:"applied_scenarios"`
	TestsTaken       int            `json:"tests_taken"`
	TestsPassed      int            `json:"tests_passed"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// NewAgentProfile returns the starting profile for an agent that has never been tested.
func NewAgentProfile(agentID string) *AgentProfile {
	now := time.Now().UTC()
	return &AgentProfile{
		SchemaVersion: ProfileSchemaVersion,
		AgentID:       agentID,
		Level:         1,
		CurrentTier:   TierBasic,
		History:       []HistoryEntry{},
		Strengths:     []Category{},
		Weaknesses:    []Category{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Clone returns a deep copy.
func (p *AgentProfile) Clone() *AgentProfile {
	if p == nil {
		return nil
	}
	c := *p
	c.History = make([]HistoryEntry, len(p.History))
	for i, h := range p.History {
		if h.ImprovementAreas != nil {
			h.ImprovementAreas = append([]string{}, h.ImprovementAreas...)
		}
		c.History[i] = h
	}
	c.Strengths = append([]Category{}, p.Strengths...)
	c.Weaknesses = append([]Category{}, p.Weaknesses...)
	c.AppliedScenarios = append([]string(nil), p.AppliedScenarios...)
	return &c
}

// HasApplied reports whether the result of scenarioID was already folded into the profile.
func (p *AgentProfile) HasApplied(scenarioID string) bool {
	for _, id := range p.AppliedScenarios {
		if id == scenarioID {
			return true
		}
	}
	for _, h := range p.History {
		if h.ScenarioID == scenarioID {
			return true
		}
	}
	return false
}

// RecentHistory returns up to the last n entries, oldest first.
func (p *AgentProfile) RecentHistory(n int) []HistoryEntry {
	if n <= 0 || len(p.History) == 0 {
		return nil
	}
	if n > len(p.History) {
		n = len(p.History)
	}
	return p.History[len(p.History)-n:]
}

// SuccessRate is the pass fraction over the last n entries. ok is false with no history.
func (p *AgentProfile) SuccessRate(n int) (rate float64, ok bool) {
	recent := p.RecentHistory(n)
	if len(recent) == 0 {
		return 0, false
	}
	passed := 0
	for _, h := range recent {
		if h.Passed {
			passed++
		}
	}
	return float64(passed) / float64(len(recent)), true
}

// PassRate is TestsPassed/TestsTaken over the agent's lifetime.
func (p *AgentProfile) PassRate() float64 {
	if p.TestsTaken == 0 {
		return 0
	}
	return float64(p.TestsPassed) / float64(p.TestsTaken)
}

// KnowledgeProfile is what the generator knows about the participants it writes for.
type KnowledgeProfile struct {
	Strengths  []Category `json:"strengths"`
	Weaknesses []Category `json:"weaknesses"`
}

// MergeKnowledge unions the strengths and weaknesses of several profiles, keeping first-seen order.
func MergeKnowledge(profiles ...*AgentProfile) KnowledgeProfile {
	var kp KnowledgeProfile
	seenS := map[Category]bool{}
	seenW := map[Category]bool{}
	for _, p := range profiles {
		if p == nil {
			continue
		}
		for _, c := range p.Strengths {
			if !seenS[c] {
				seenS[c] = true
				kp.Strengths = append(kp.Strengths, c)
			}
		}
		for _, c := range p.Weaknesses {
			if !seenW[c] {
				seenW[c] = true
				kp.Weaknesses = append(kp.Weaknesses, c)
			}
		}
	}
	return kp
}
