package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testDefinition() *WorkflowDefinition {
	return &WorkflowDefinition{
		Name: "quantfold-strategy-s1",
		Nodes: []*Node{
			{
				Name:        "Schedule Trigger",
				Type:        "trigger:schedule",
				TypeVersion: 1,
				Parameters:  map[string]any{"cron": "0 9 * * *"},
				Position:    []int{0, 0},
			},
			{
				Name:        "Run Analysis",
				Type:        "http:request",
				TypeVersion: 2,
				Parameters:  map[string]any{"method": "POST", "url": "https://api.example.com/analyze"},
				Position:    []int{200, 0},
			},
		},
		Connections: map[string][]Connection{
			"Schedule Trigger": {{TargetNode: "Run Analysis", Input: "main"}},
		},
	}
}

func TestWorkflowDefinition_Equal_Identical(t *testing.T) {
	assert.True(t, testDefinition().Equal(testDefinition()))
}

func TestWorkflowDefinition_Equal_IgnoresVolatileFields(t *testing.T) {
	installed := testDefinition()
	installed.Nodes[0].ID = "node-abc-123"
	installed.Nodes[1].ID = "node-def-456"
	installed.Nodes[0].Position = []int{640, 480}

	assert.True(t, installed.Equal(testDefinition()))
}

func TestWorkflowDefinition_Equal_NodeOrderInsensitive(t *testing.T) {
	reordered := testDefinition()
	reordered.Nodes[0], reordered.Nodes[1] = reordered.Nodes[1], reordered.Nodes[0]

	assert.True(t, reordered.Equal(testDefinition()))
}

func TestWorkflowDefinition_Equal_DetectsParameterChange(t *testing.T) {
	changed := testDefinition()
	changed.Nodes[0].Parameters["cron"] = "0 9 * * 1"

	assert.False(t, changed.Equal(testDefinition()))
}

func TestWorkflowDefinition_Equal_DetectsNodeAddition(t *testing.T) {
	extended := testDefinition()
	extended.Nodes = append(extended.Nodes, &Node{Name: "Extra", Type: "log"})

	assert.False(t, extended.Equal(testDefinition()))
}

func TestWorkflowDefinition_Equal_DetectsConnectionChange(t *testing.T) {
	rewired := testDefinition()
	rewired.Connections["Schedule Trigger"] = []Connection{{TargetNode: "Run Analysis", Input: "alternate"}}

	assert.False(t, rewired.Equal(testDefinition()))
}

func TestWorkflowDefinition_Equal_Nil(t *testing.T) {
	var nilDef *WorkflowDefinition

	assert.True(t, nilDef.Equal(nil))
	assert.False(t, nilDef.Equal(testDefinition()))
	assert.False(t, testDefinition().Equal(nil))
}

func TestWorkflowDefinition_NodeByName(t *testing.T) {
	definition := testDefinition()

	node := definition.NodeByName("Run Analysis")
	assert.NotNil(t, node)
	assert.Equal(t, "http:request", node.Type)

	assert.Nil(t, definition.NodeByName("Missing"))
}
