package messages

import (
	"time"
)

// EventMessage represents a system event message sent via NATS
type EventMessage struct {
	Type          string                 `json:"type"`   // "agent.advanced", "agent.leveled", "execution.finished", "system.error"
	Source        string                 `json:"source"` // Service that generated the event
	EntityID      string                 `json:"entity_id,omitempty"`
	Event         EventData              `json:"event"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// EventData contains the event-specific information
type EventData struct {
	Action      string                 `json:"action"`   // "advanced", "leveled", "finished", "error"
	Category    string                 `json:"category"` // "agent", "execution", "system"
	Description string                 `json:"description,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// AgentAdvanced creates an agent.advanced event for a tier change.
func AgentAdvanced(agentID, fromTier, toTier, source string) *EventMessage {
	return &EventMessage{
		Type:     "agent.advanced",
		Source:   source,
		EntityID: agentID,
		Event: EventData{
			Action:   "advanced",
			Category: "agent",
			Data:     map[string]interface{}{"from": fromTier, "to": toTier},
		},
		Timestamp: time.Now(),
	}
}

// AgentLeveled creates an agent.leveled event.
func AgentLeveled(agentID string, fromLevel, toLevel int, source string) *EventMessage {
	return &EventMessage{
		Type:     "agent.leveled",
		Source:   source,
		EntityID: agentID,
		Event: EventData{
			Action:   "leveled",
			Category: "agent",
			Data:     map[string]interface{}{"from": fromLevel, "to": toLevel},
		},
		Timestamp: time.Now(),
	}
}

// ExecutionFinished creates an execution.finished event.
func ExecutionFinished(executionID, scenarioID, status, source string) *EventMessage {
	return &EventMessage{
		Type:     "execution.finished",
		Source:   source,
		EntityID: executionID,
		Event: EventData{
			Action:   "finished",
			Category: "execution",
			Data:     map[string]interface{}{"scenario_id": scenarioID, "status": status},
		},
		CorrelationID: executionID,
		Timestamp:     time.Now(),
	}
}

// SystemError creates a system.error event
func SystemError(source, description string, data map[string]interface{}) *EventMessage {
	return &EventMessage{
		Type:   "system.error",
		Source: source,
		Event: EventData{
			Action:      "error",
			Category:    "system",
			Description: description,
			Data:        data,
		},
		Timestamp: time.Now(),
	}
}
