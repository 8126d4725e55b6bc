package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/quantfold/pkg/models"
)

func testParams() Params {
	return Params{
		StrategyID: "s1",
		Name:       "Momentum",
		Frequency:  models.FrequencyDaily,
		Credential: "cred-1",
	}
}

func TestWorkflowName(t *testing.T) {
	assert.Equal(t, "quantfold-strategy-s1", WorkflowName("s1"))
}

func TestRenderer_WebhookURL(t *testing.T) {
	renderer := NewRenderer("http://api.local", "http://engine.local/")

	assert.Equal(t, "http://engine.local/webhook/strategy/s1", renderer.WebhookURL("s1"))
}

func TestRenderer_Render(t *testing.T) {
	renderer := NewRenderer("http://api.local", "http://engine.local")

	definition, err := renderer.Render(testParams())
	require.NoError(t, err)

	assert.Equal(t, "quantfold-strategy-s1", definition.Name)
	assert.Len(t, definition.Nodes, 4)

	schedule := definition.NodeByName("Schedule Trigger")
	require.NotNil(t, schedule)
	assert.Equal(t, "0 9 * * *", schedule.Parameters["cron"])

	manual := definition.NodeByName("Manual Trigger")
	require.NotNil(t, manual)
	assert.Equal(t, "strategy/s1", manual.Parameters["path"])

	analysis := definition.NodeByName("Run Analysis")
	require.NotNil(t, analysis)
	assert.Equal(t, "http://api.local/internal/strategies/s1/analyze", analysis.Parameters["url"])
	assert.Equal(t, "cred-1", analysis.Credentials["strategyApi"])

	assert.Equal(t, Version, definition.Settings["template_version"])
}

func TestRenderer_RenderFrequencyCron(t *testing.T) {
	renderer := NewRenderer("http://api.local", "http://engine.local")

	tests := []struct {
		frequency models.Frequency
		cron      string
	}{
		{models.FrequencyDaily, "0 9 * * *"},
		{models.FrequencyTwiceWeekly, "0 9 * * 1,4"},
		{models.FrequencyWeekly, "0 9 * * 1"},
		{models.FrequencyBiweekly, "0 9 1,15 * *"},
		{models.FrequencyMonthly, "0 9 1 * *"},
	}

	for _, tt := range tests {
		t.Run(string(tt.frequency), func(t *testing.T) {
			params := testParams()
			params.Frequency = tt.frequency

			definition, err := renderer.Render(params)
			require.NoError(t, err)

			schedule := definition.NodeByName("Schedule Trigger")
			require.NotNil(t, schedule)
			assert.Equal(t, tt.cron, schedule.Parameters["cron"])
		})
	}
}

func TestRenderer_RenderUnknownFrequency(t *testing.T) {
	renderer := NewRenderer("http://api.local", "http://engine.local")

	params := testParams()
	params.Frequency = models.Frequency("HOURLY")

	_, err := renderer.Render(params)
	assert.Error(t, err)
}

func TestRenderer_RenderConnections(t *testing.T) {
	renderer := NewRenderer("http://api.local", "http://engine.local")

	definition, err := renderer.Render(testParams())
	require.NoError(t, err)

	require.Contains(t, definition.Connections, "Schedule Trigger")
	assert.Equal(t, "Run Analysis", definition.Connections["Schedule Trigger"][0].TargetNode)
	require.Contains(t, definition.Connections, "Manual Trigger")
	assert.Equal(t, "Run Analysis", definition.Connections["Manual Trigger"][0].TargetNode)
	require.Contains(t, definition.Connections, "Run Analysis")
	assert.Equal(t, "Publish Predictions", definition.Connections["Run Analysis"][0].TargetNode)
}

func TestValidateDefinition_RejectsEmpty(t *testing.T) {
	err := ValidateDefinition(&models.WorkflowDefinition{})
	assert.Error(t, err)
}

func TestValidateDefinition_RejectsNodeWithoutType(t *testing.T) {
	definition := &models.WorkflowDefinition{
		Name: "broken",
		Nodes: []*models.Node{
			{Name: "Orphan"},
		},
	}

	err := ValidateDefinition(definition)
	assert.Error(t, err)
}
