package temporal

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanhubbard/gauntlet/internal/temporal/workflows"
	"github.com/jordanhubbard/gauntlet/pkg/config"
)

func temporalTestConfig() config.TemporalConfig {
	host := os.Getenv("TEMPORAL_HOST")
	if host == "" {
		host = "localhost:7233"
	}
	return config.TemporalConfig{
		Host:                     host,
		Namespace:                "default",
		TaskQueue:                "gauntlet-test-queue",
		WorkflowExecutionTimeout: time.Hour,
	}
}

func temporalRequired() bool {
	value := strings.ToLower(os.Getenv("TEMPORAL_REQUIRED"))
	return value == "true" || value == "1" || value == "yes"
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	manager, err := NewManager(ctx, temporalTestConfig(), nil, nil)
	if err != nil {
		if temporalRequired() {
			t.Fatalf("Temporal server not available: %v", err)
		}
		t.Skipf("Temporal server not available: %v", err)
	}
	t.Cleanup(manager.Stop)
	return manager
}

func TestCampaignTimeout(t *testing.T) {
	small := workflows.CampaignInput{Cohorts: [][]string{{"a"}}, TestTimeout: time.Minute}
	assert.Equal(t, 24*time.Hour, campaignTimeout(24*time.Hour, small))

	big := workflows.CampaignInput{Cohorts: [][]string{{"a"}, {"b"}, {"c"}}, Rounds: 4}
	assert.Equal(t, big.MaxDuration(), campaignTimeout(24*time.Hour, big))
	assert.Greater(t, campaignTimeout(24*time.Hour, big), 24*time.Hour)
}

func TestNewManager_EmptyHost(t *testing.T) {
	_, err := NewManager(context.Background(), config.TemporalConfig{}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host")
}

func TestManager_StartCampaignTwice(t *testing.T) {
	manager := newTestManager(t)
	require.NoError(t, manager.Start())

	input := workflows.CampaignInput{Cohorts: [][]string{{"a"}}, Rounds: 1}
	id, err := manager.StartCampaign(context.Background(), "", input)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.CancelCampaign(context.Background(), id) })

	_, err = manager.StartCampaign(context.Background(), strings.TrimPrefix(id, "campaign-"), input)
	assert.ErrorIs(t, err, ErrCampaignRunning)
}
