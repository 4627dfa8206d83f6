package gauntlet

import (
	"context"
	"fmt"

	"github.com/jordanhubbard/gauntlet/pkg/models"
)

// AgentStats is the per-agent line of an analytics report.
type AgentStats struct {
	AgentID          string            `json:"agent_id"`
	Level            int               `json:"level"`
	ExperiencePoints int               `json:"experience_points"`
	Tier             models.Tier       `json:"tier"`
	TestsTaken       int               `json:"tests_taken"`
	TestsPassed      int               `json:"tests_passed"`
	PassRate         float64           `json:"pass_rate"`
	Strengths        []models.Category `json:"strengths"`
	Weaknesses       []models.Category `json:"weaknesses"`
}

// Analytics summarizes the learning state of every known agent.
type Analytics struct {
	Agents       int                 `json:"agents"`
	TestsTaken   int                 `json:"tests_taken"`
	TestsPassed  int                 `json:"tests_passed"`
	PassRate     float64             `json:"pass_rate"`
	AverageLevel float64             `json:"average_level"`
	PerTier      map[models.Tier]int `json:"per_tier"`
	PerAgent     []AgentStats        `json:"per_agent"`
}

// Analytics builds a report from the stored profiles, ordered by agent id.
func (e *Engine) Analytics(ctx context.Context) (*Analytics, error) {
	profiles, err := e.store.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return summarize(profiles), nil
}

func summarize(profiles []*models.AgentProfile) *Analytics {
	a := &Analytics{
		Agents:   len(profiles),
		PerTier:  make(map[models.Tier]int, len(models.Tiers)),
		PerAgent: make([]AgentStats, 0, len(profiles)),
	}
	levels := 0
	for _, p := range profiles {
		a.TestsTaken += p.TestsTaken
		a.TestsPassed += p.TestsPassed
		a.PerTier[p.CurrentTier]++
		levels += p.Level
		a.PerAgent = append(a.PerAgent, AgentStats{
			AgentID:          p.AgentID,
			Level:            p.Level,
			ExperiencePoints: p.ExperiencePoints,
			Tier:             p.CurrentTier,
			TestsTaken:       p.TestsTaken,
			TestsPassed:      p.TestsPassed,
			PassRate:         p.PassRate(),
			Strengths:        p.Strengths,
			Weaknesses:       p.Weaknesses,
		})
	}
	if a.TestsTaken > 0 {
		a.PassRate = float64(a.TestsPassed) / float64(a.TestsTaken)
	}
	if a.Agents > 0 {
		a.AverageLevel = float64(levels) / float64(a.Agents)
	}
	return a
}
