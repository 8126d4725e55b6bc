// Package events defines event types for strategy lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries all lifecycle events.
const Topic = "quantfold.lifecycle"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	StrategyStartedEvent      EventType = "strategy.started"
	StrategyPausedEvent       EventType = "strategy.paused"
	StrategyStoppedEvent      EventType = "strategy.stopped"
	PredictionsTriggeredEvent EventType = "strategy.predictions.triggered"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	StrategyID string         `json:"strategy_id"`
	OwnerID    string         `json:"owner_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent creates the common event envelope.
func NewBaseEvent(eventType EventType, strategyID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		StrategyID: strategyID,
	}
}

type StrategyStarted struct {
	BaseEvent

	RemoteWorkflowID string     `json:"remote_workflow_id,omitempty"`
	NextScheduledAt  *time.Time `json:"next_scheduled_at,omitempty"`
}

func (e StrategyStarted) GetType() EventType {
	return StrategyStartedEvent
}

type StrategyPaused struct {
	BaseEvent

	RemoteWorkflowID string `json:"remote_workflow_id,omitempty"`
}

func (e StrategyPaused) GetType() EventType {
	return StrategyPausedEvent
}

type StrategyStopped struct {
	BaseEvent

	RemoteWorkflowID string `json:"remote_workflow_id,omitempty"`
}

func (e StrategyStopped) GetType() EventType {
	return StrategyStoppedEvent
}

type PredictionsTriggered struct {
	BaseEvent

	RemoteWorkflowID string `json:"remote_workflow_id,omitempty"`
	Success          bool   `json:"success"`
	Message          string `json:"message,omitempty"`
}

func (e PredictionsTriggered) GetType() EventType {
	return PredictionsTriggeredEvent
}
