// Package storetest checks that a learning.Store honours the Store contract.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jordanhubbard/gauntlet/internal/learning"
	"github.com/jordanhubbard/gauntlet/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(scenarioID, agentID string, score float64) *models.ExecutionRecord {
	sc := &models.TestScenario{ID: scenarioID, Category: models.CategoryTesting, Tier: models.TierBasic, Multiplier: models.MultiplierX1, ParticipantIDs: []string{agentID}}
	ex := models.NewTestExecution("ex-"+scenarioID, sc)
	return &models.ExecutionRecord{
		ScenarioID: scenarioID,
		AgentID:    agentID,
		Scenario:   sc,
		Execution:  ex,
		Result:     &models.EvaluationResult{AgentID: agentID, ScenarioID: scenarioID, AggregateScore: score},
		RecordedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

// Run exercises newStore against the Store contract. Each subtest gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) learning.Store) {
	ctx := context.Background()

	t.Run("LoadMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Load(ctx, "nobody")
		assert.ErrorIs(t, err, learning.ErrProfileNotFound)

		p, err := learning.LoadOrCreate(ctx, s, "nobody")
		require.NoError(t, err)
		assert.Equal(t, 1, p.Level)
		assert.Equal(t, models.TierBasic, p.CurrentTier)
	})

	t.Run("SaveLoadRoundTrip", func(t *testing.T) {
		s := newStore(t)
		p := models.NewAgentProfile("agent-1")
		p.ExperiencePoints = 42
		p.CurrentTier = models.TierAdvanced
		p.History = append(p.History, models.HistoryEntry{ScenarioID: "s1", Category: models.CategorySecurity, Score: 55, ImprovementAreas: []string{"threats"}})
		p.Weaknesses = []models.Category{models.CategorySecurity}
		require.NoError(t, s.Save(ctx, p))

		got, err := s.Load(ctx, "agent-1")
		require.NoError(t, err)
		assert.Equal(t, 42, got.ExperiencePoints)
		assert.Equal(t, models.TierAdvanced, got.CurrentTier)
		require.Len(t, got.History, 1)
		assert.Equal(t, []string{"threats"}, got.History[0].ImprovementAreas)
		assert.Equal(t, []models.Category{models.CategorySecurity}, got.Weaknesses)

		got.ExperiencePoints = 0
		again, err := s.Load(ctx, "agent-1")
		require.NoError(t, err)
		assert.Equal(t, 42, again.ExperiencePoints, "loaded profiles are copies")
	})

	t.Run("CommitIsOncePerScenarioAndAgent", func(t *testing.T) {
		s := newStore(t)
		p := models.NewAgentProfile("agent-1")
		p.ExperiencePoints = 80
		require.NoError(t, s.Commit(ctx, p, record("s1", "agent-1", 80)))

		p2 := p.Clone()
		p2.ExperiencePoints = 160
		err := s.Commit(ctx, p2, record("s1", "agent-1", 80))
		assert.ErrorIs(t, err, learning.ErrAlreadyRecorded)

		got, err := s.Load(ctx, "agent-1")
		require.NoError(t, err)
		assert.Equal(t, 80, got.ExperiencePoints, "a rejected commit writes nothing")

		// Same scenario, other agent is a distinct record.
		require.NoError(t, s.Commit(ctx, models.NewAgentProfile("agent-2"), record("s1", "agent-2", 50)))
	})

	t.Run("RecordsNewestFirst", func(t *testing.T) {
		s := newStore(t)
		p := models.NewAgentProfile("agent-1")
		for i, id := range []string{"s1", "s2", "s3"} {
			rec := record(id, "agent-1", float64(10*(i+1)))
			rec.RecordedAt = rec.RecordedAt.Add(time.Duration(i) * time.Second)
			require.NoError(t, s.Commit(ctx, p, rec))
		}

		recs, err := s.Records(ctx, "agent-1", 2)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "s3", recs[0].ScenarioID)
		assert.Equal(t, "s2", recs[1].ScenarioID)
		require.NotNil(t, recs[0].Result)
		assert.Equal(t, 30.0, recs[0].Result.AggregateScore)

		all, err := s.Records(ctx, "agent-1", 0)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("ListProfilesSorted", func(t *testing.T) {
		s := newStore(t)
		for _, id := range []string{"zeta", "alpha", "mid"} {
			require.NoError(t, s.Save(ctx, models.NewAgentProfile(id)))
		}
		ps, err := s.ListProfiles(ctx)
		require.NoError(t, err)
		require.Len(t, ps, 3)
		assert.Equal(t, "alpha", ps[0].AgentID)
		assert.Equal(t, "zeta", ps[2].AgentID)
	})

	t.Run("ConcurrentCommitsForDifferentAgents", func(t *testing.T) {
		s := newStore(t)
		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			agent := string(rune('a' + i))
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.Commit(ctx, models.NewAgentProfile(agent), record("shared", agent, 70))
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}
		ps, err := s.ListProfiles(ctx)
		require.NoError(t, err)
		assert.Len(t, ps, 8)
	})
}
