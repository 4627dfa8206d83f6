package gauntlet_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanhubbard/gauntlet/internal/database"
	"github.com/jordanhubbard/gauntlet/internal/dispatch"
	"github.com/jordanhubbard/gauntlet/internal/gauntlet"
	"github.com/jordanhubbard/gauntlet/internal/learning"
	"github.com/jordanhubbard/gauntlet/internal/messagebus"
	"github.com/jordanhubbard/gauntlet/pkg/messages"
	"github.com/jordanhubbard/gauntlet/pkg/models"
)

// TestEndToEnd_SQLitePersistsAcrossEngines runs tests through one engine,
// reopens the database and keeps going with a second engine.
func TestEndToEnd_SQLitePersistsAcrossEngines(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "gauntlet.db")
	responders := dispatch.Responders{
		"alice": dispatch.StaticResponder{Reply: "error handling, documented functions and tests for the main behaviour"},
	}

	store, err := database.New(ctx, path)
	require.NoError(t, err)
	e := gauntlet.New(store, responders)
	first, err := e.GenerateAndRun(ctx, models.CategoryCoding, []string{"alice"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = database.New(ctx, path)
	require.NoError(t, err)
	defer store.Close()
	e = gauntlet.New(store, responders)

	before, err := e.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, before.TestsTaken)
	assert.Equal(t, first.Profiles["alice"].ExperiencePoints, before.ExperiencePoints)

	_, err = e.GenerateAndRun(ctx, models.CategoryTesting, []string{"alice"})
	require.NoError(t, err)

	after, err := e.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, after.TestsTaken)
	require.Len(t, after.History, 2)
	assert.Equal(t, models.CategoryCoding, after.History[0].Category)
	assert.Equal(t, models.CategoryTesting, after.History[1].Category)

	recs, err := e.Records(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, models.CategoryTesting, recs[0].Scenario.Category, "newest first")
}

// TestEndToEnd_RemoteAgentsOverNATS dispatches a group test to agents
// answering over NATS and checks the published results.
func TestEndToEnd_RemoteAgentsOverNATS(t *testing.T) {
	url := os.Getenv("GAUNTLET_TEST_NATS_URL")
	if url == "" {
		t.Skip("GAUNTLET_TEST_NATS_URL not set")
	}
	ctx := context.Background()

	bus, err := messagebus.NewNatsMessageBus(messagebus.Config{
		URL:            url,
		StreamName:     "GAUNTLET_E2E",
		Timeout:        10 * time.Second,
		ConsumerPrefix: "e2e-" + uuid.NewString()[:8],
	})
	if err != nil {
		t.Skipf("NATS not available: %v", err)
	}
	defer bus.Close()

	agents := []string{"e2e-" + uuid.NewString()[:8], "e2e-" + uuid.NewString()[:8]}
	for _, id := range agents {
		sub, err := messagebus.ServeAgent(bus.Conn(), id, func(ctx context.Context, req *messages.RespondRequest) (string, error) {
			return id + " covers the " + req.Phase + " phase with tests and clear interfaces", nil
		}, nil)
		require.NoError(t, err)
		defer sub.Unsubscribe()
	}

	got := make(chan *messages.ResultMessage, 4)
	require.NoError(t, bus.SubscribeResults(func(r *messages.ResultMessage) {
		for _, id := range agents {
			if r.AgentID == id {
				got <- r
			}
		}
	}))

	reg := dispatch.NewRegistry("nats")
	reg.Register("nats", messagebus.NewAgentResponder(bus.Conn()))
	e := gauntlet.New(learning.NewMemoryStore(), reg, gauntlet.WithPublisher(bus))

	summary, err := e.GenerateAndRun(ctx, models.CategoryCollaboration, agents)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, summary.Execution.Status)
	for _, r := range summary.Execution.Responses {
		assert.Len(t, r.Phases, len(models.CollaborativePhases))
	}

	seen := map[string]bool{}
	timeout := time.After(10 * time.Second)
	for len(seen) < len(agents) {
		select {
		case r := <-got:
			assert.Equal(t, summary.Scenario.ID, r.ScenarioID)
			seen[r.AgentID] = true
		case <-timeout:
			t.Fatalf("received results for %d of %d agents", len(seen), len(agents))
		}
	}
}
