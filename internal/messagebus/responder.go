package messagebus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jordanhubbard/gauntlet/internal/dispatch"
	"github.com/jordanhubbard/gauntlet/pkg/messages"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// ErrAgentUnreachable means nobody is listening on the agent's subject.
var ErrAgentUnreachable = errors.New("agent unreachable over NATS")

// AgentSubject is the request subject an agent listens on.
func AgentSubject(agentID string) string {
	return fmt.Sprintf("%s.agents.%s.respond", subjectRoot, subjectToken(agentID))
}

// AgentResponder reaches remote agents with core NATS request/reply.
type AgentResponder struct {
	conn *nats.Conn
}

var _ dispatch.Responder = (*AgentResponder)(nil)

// NewAgentResponder uses an established connection.
func NewAgentResponder(conn *nats.Conn) *AgentResponder {
	return &AgentResponder{conn: conn}
}

// Respond sends the prompt and waits for the reply until ctx is done.
func (r *AgentResponder) Respond(ctx context.Context, agentID, prompt string, rc dispatch.RespondContext) (string, error) {
	req := messages.RespondRequest{
		RequestID:   uuid.NewString(),
		AgentID:     agentID,
		ScenarioID:  rc.ScenarioID,
		ExecutionID: rc.ExecutionID,
		Category:    string(rc.Category),
		Tier:        string(rc.Tier),
		Multiplier:  int(rc.Multiplier),
		Phase:       string(rc.Phase),
		Peers:       rc.Peers,
		Prompt:      prompt,
		Deadline:    rc.Deadline,
	}
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	msg, err := r.conn.RequestWithContext(ctx, AgentSubject(agentID), data)
	if errors.Is(err, nats.ErrNoResponders) {
		return "", fmt.Errorf("%w: %s", ErrAgentUnreachable, agentID)
	}
	if err != nil {
		return "", fmt.Errorf("request to agent %s: %w", agentID, err)
	}

	var reply messages.RespondReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return "", fmt.Errorf("failed to unmarshal reply from %s: %w", agentID, err)
	}
	if reply.Error != "" {
		return "", fmt.Errorf("agent %s: %s", agentID, reply.Error)
	}
	return reply.Text, nil
}

// AgentHandler answers one request on the agent side.
type AgentHandler func(ctx context.Context, req *messages.RespondRequest) (string, error)

// ServeAgent subscribes handler to agentID's request subject. Each request
// gets a context that expires at the request deadline.
func ServeAgent(conn *nats.Conn, agentID string, handler AgentHandler, logger *zap.Logger) (*nats.Subscription, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return conn.Subscribe(AgentSubject(agentID), func(msg *nats.Msg) {
		var req messages.RespondRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			logger.Warn("bad respond request", zap.String("agent_id", agentID), zap.Error(err))
			return
		}

		ctx := context.Background()
		if !req.Deadline.IsZero() {
			var cancel context.CancelFunc
			ctx, cancel = context.WithDeadline(ctx, req.Deadline)
			defer cancel()
		}

		reply := messages.RespondReply{RequestID: req.RequestID}
		text, err := handler(ctx, &req)
		if err != nil {
			reply.Error = err.Error()
		} else {
			reply.Text = text
		}
		data, err := json.Marshal(reply)
		if err != nil {
			logger.Error("failed to marshal reply", zap.Error(err))
			return
		}
		if err := msg.Respond(data); err != nil {
			logger.Warn("failed to send reply", zap.String("agent_id", agentID), zap.Error(err))
		}
	})
}
