package messages

import "time"

// RespondRequest asks a remote agent to answer a prompt over NATS request/reply.
type RespondRequest struct {
	RequestID   string    `json:"request_id"`
	AgentID     string    `json:"agent_id"`
	ScenarioID  string    `json:"scenario_id"`
	ExecutionID string    `json:"execution_id"`
	Category    string    `json:"category"`
	Tier        string    `json:"tier"`
	Multiplier  int       `json:"multiplier"`
	Phase       string    `json:"phase,omitempty"`
	Peers       []string  `json:"peers,omitempty"`
	Prompt      string    `json:"prompt"`
	Deadline    time.Time `json:"deadline"`
}

// RespondReply is the agent's answer. A non-empty Error means the agent gave up.
type RespondReply struct {
	RequestID string `json:"request_id"`
	Text      string `json:"text"`
	Error     string `json:"error,omitempty"`
}
