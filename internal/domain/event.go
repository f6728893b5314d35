package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventAgentRegistered      EventType = "agent.registered"
	EventAgentUpdated         EventType = "agent.updated"
	EventAgentStatusChanged   EventType = "agent.status.changed"
	EventTaskStarted          EventType = "task.started"
	EventTaskCompleted        EventType = "task.completed"
	EventTaskFailed           EventType = "task.failed"
	EventWorkforceInitialized EventType = "workforce.initialized"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	AgentID   string          `json:"agent_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}

// StatusChangePayload is the payload for agent.status.changed events.
type StatusChangePayload struct {
	From AgentStatus `json:"from"`
	To   AgentStatus `json:"to"`
}

// TaskEventPayload is the payload for task.completed and task.failed.
type TaskEventPayload struct {
	TaskID    string `json:"task_id"`
	AgentName string `json:"agent_name,omitempty"`
	Model     string `json:"model,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}
