package template

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/quantfold/quantfold/pkg/models"
)

// definitionSchema is the contract a definition must satisfy before it is
// sent to the engine. Catching a malformed template here beats a 400 from
// the engine mid-operation.
const definitionSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["name", "nodes", "connections"],
	"properties": {
		"name": {
			"type": "string",
			"minLength": 1
		},
		"nodes": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["name", "type"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"type": {"type": "string", "minLength": 1},
					"type_version": {"type": "integer", "minimum": 1},
					"parameters": {"type": "object"}
				}
			}
		},
		"connections": {
			"type": "object",
			"additionalProperties": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["target_node", "input"],
					"properties": {
						"target_node": {"type": "string", "minLength": 1},
						"input": {"type": "string", "minLength": 1}
					}
				}
			}
		}
	}
}`

// ValidateDefinition checks a workflow definition against the schema.
func ValidateDefinition(definition *models.WorkflowDefinition) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(definitionSchema),
		gojsonschema.NewGoLoader(definition),
	)
	if err != nil {
		return fmt.Errorf("failed to validate definition: %w", err)
	}

	if result.Valid() {
		return nil
	}

	issues := make([]string, 0, len(result.Errors()))
	for _, issue := range result.Errors() {
		issues = append(issues, issue.String())
	}

	return fmt.Errorf("definition failed schema validation: %s", strings.Join(issues, "; "))
}
