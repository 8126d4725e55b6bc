package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewBaseEvent(t *testing.T) {
	event := NewBaseEvent(StrategyStartedEvent, "s1")

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, StrategyStartedEvent, event.Type)
	assert.Equal(t, "s1", event.StrategyID)
	assert.False(t, event.Timestamp.IsZero())

	other := NewBaseEvent(StrategyStartedEvent, "s1")
	assert.NotEqual(t, event.ID, other.ID)
}

func TestEventTypes(t *testing.T) {
	assert.Equal(t, StrategyStartedEvent, StrategyStarted{}.GetType())
	assert.Equal(t, StrategyPausedEvent, StrategyPaused{}.GetType())
	assert.Equal(t, StrategyStoppedEvent, StrategyStopped{}.GetType())
	assert.Equal(t, PredictionsTriggeredEvent, PredictionsTriggered{}.GetType())
}
