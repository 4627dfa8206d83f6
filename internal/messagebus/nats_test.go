package messagebus

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jordanhubbard/gauntlet/internal/dispatch"
	"github.com/jordanhubbard/gauntlet/pkg/config"
	"github.com/jordanhubbard/gauntlet/pkg/messages"
	"github.com/jordanhubbard/gauntlet/pkg/models"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func natsURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("GAUNTLET_TEST_NATS_URL")
	if url == "" {
		t.Skip("GAUNTLET_TEST_NATS_URL not set")
	}
	return url
}

func TestSubjectToken(t *testing.T) {
	tests := []struct{ in, want string }{
		{"agent-1", "agent-1"},
		{"team.alpha", "team_alpha"},
		{"a*b>c", "a_b_c"},
		{"with space", "with_space"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, subjectToken(tc.in))
	}
	assert.Equal(t, "gauntlet.agents.team_alpha.respond", AgentSubject("team.alpha"))
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.NATSConfig{URL: "nats://custom:4222", StreamName: "CUSTOM", Timeout: 30 * time.Second}, nil)
	assert.Equal(t, "nats://custom:4222", cfg.URL)
	assert.Equal(t, "CUSTOM", cfg.StreamName)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}

func TestNewNatsMessageBus_BadURL(t *testing.T) {
	_, err := NewNatsMessageBus(Config{
		URL:     "nats://nonexistent-host:99999",
		Timeout: 500 * time.Millisecond,
	})
	assert.Error(t, err)
}

func TestNatsMessageBus_PublishSubscribe(t *testing.T) {
	url := natsURL(t)
	prefix := "test-" + strings.ReplaceAll(time.Now().Format("150405.000"), ".", "")
	mb, err := NewNatsMessageBus(Config{URL: url, StreamName: "GAUNTLET_TEST", ConsumerPrefix: prefix})
	require.NoError(t, err)
	defer mb.Close()
	require.NoError(t, mb.Health())

	got := make(chan *messages.ResultMessage, 1)
	require.NoError(t, mb.SubscribeResults(func(m *messages.ResultMessage) {
		if m.CorrelationID == prefix {
			got <- m
		}
	}))

	msg := &messages.ResultMessage{Type: messages.TypeTestPassed, AgentID: "agent.1", CorrelationID: prefix}
	require.NoError(t, mb.PublishResult(context.Background(), msg))

	select {
	case m := <-got:
		assert.Equal(t, "agent.1", m.AgentID)
	case <-time.After(5 * time.Second):
		t.Fatal("result not delivered")
	}
}

func TestNatsMessageBus_SubscribeEvents(t *testing.T) {
	url := natsURL(t)
	prefix := "test-" + strings.ReplaceAll(time.Now().Format("150405.000"), ".", "")
	mb, err := NewNatsMessageBus(Config{URL: url, StreamName: "GAUNTLET_TEST", ConsumerPrefix: prefix})
	require.NoError(t, err)
	defer mb.Close()

	advanced := make(chan *messages.EventMessage, 4)
	all := make(chan *messages.EventMessage, 4)
	require.NoError(t, mb.SubscribeEvents("agent.advanced", func(ev *messages.EventMessage) {
		if ev.EntityID == prefix {
			advanced <- ev
		}
	}))
	require.NoError(t, mb.SubscribeEvents("*", func(ev *messages.EventMessage) {
		if ev.EntityID == prefix {
			all <- ev
		}
	}))

	ctx := context.Background()
	adv := messages.AgentAdvanced(prefix, "basic", "intermediate", "test")
	require.NoError(t, mb.PublishEvent(ctx, adv.Type, adv))
	lvl := messages.AgentLeveled(prefix, 1, 2, "test")
	require.NoError(t, mb.PublishEvent(ctx, lvl.Type, lvl))

	select {
	case ev := <-advanced:
		assert.Equal(t, "agent.advanced", ev.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("advanced event not delivered")
	}
	seen := map[string]bool{}
	for len(seen) < 2 {
		select {
		case ev := <-all:
			seen[ev.Type] = true
		case <-time.After(5 * time.Second):
			t.Fatalf("received %d of 2 event types", len(seen))
		}
	}
	select {
	case ev := <-advanced:
		t.Fatalf("unexpected %s on the agent.advanced subscription", ev.Type)
	default:
	}

	stats := mb.Stats()
	assert.Equal(t, "GAUNTLET_TEST", stats["stream"])
	assert.Equal(t, 2, stats["subscriptions"])
}

func TestAgentResponder_RoundTrip(t *testing.T) {
	url := natsURL(t)
	nc, err := nats.Connect(url)
	require.NoError(t, err)
	defer nc.Close()

	sub, err := ServeAgent(nc, "agent-7", func(ctx context.Context, req *messages.RespondRequest) (string, error) {
		if req.Phase == "planning" {
			return "", errors.New("not my job")
		}
		return "answer to " + req.Prompt, nil
	}, nil)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	r := NewAgentResponder(nc)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	text, err := r.Respond(ctx, "agent-7", "hello", dispatch.RespondContext{ScenarioID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "answer to hello", text)

	_, err = r.Respond(ctx, "agent-7", "hello", dispatch.RespondContext{Phase: models.PhasePlanning})
	assert.ErrorContains(t, err, "not my job")

	_, err = r.Respond(ctx, "nobody-home", "hello", dispatch.RespondContext{})
	assert.ErrorIs(t, err, ErrAgentUnreachable)
}
