package models

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"
)

// Workflow is the engine-side representation of a provisioned workflow. It
// is owned by the remote engine; the coordinator only references it through
// a strategy's RemoteWorkflowID.
type Workflow struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Active        bool               `json:"active"`
	Definition    WorkflowDefinition `json:"definition"`
	CredentialRef string             `json:"credential_ref,omitempty"`
	CreatedAt     *time.Time         `json:"created_at,omitempty"`
	UpdatedAt     *time.Time         `json:"updated_at,omitempty"`
}

// WorkflowDefinition is the node/connection graph executed by the engine,
// modelled explicitly instead of as an opaque document so that definitions
// from different template versions can be diffed.
type WorkflowDefinition struct {
	Name        string                  `json:"name"`
	Nodes       []*Node                 `json:"nodes"`
	Connections map[string][]Connection `json:"connections"` // keyed by source node name
	Settings    map[string]any          `json:"settings,omitempty"`
}

// Node is a single step in a workflow definition.
type Node struct {
	ID          string            `json:"id,omitempty"` // engine-assigned, volatile
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	TypeVersion int               `json:"type_version"`
	Parameters  map[string]any    `json:"parameters,omitempty"`
	Credentials map[string]string `json:"credentials,omitempty"`
	Position    []int             `json:"position,omitempty"`
}

// Connection links a source node's output to a target node's input.
type Connection struct {
	TargetNode string `json:"target_node"`
	Input      string `json:"input"`
}

// Equal performs a structural comparison of two definitions, ignoring
// volatile fields the engine rewrites on install (engine-assigned node IDs,
// canvas positions). Node order is not significant.
func (d *WorkflowDefinition) Equal(other *WorkflowDefinition) bool {
	if d == nil || other == nil {
		return d == other
	}

	left, err := canonicalDefinition(d)
	if err != nil {
		return false
	}

	right, err := canonicalDefinition(other)
	if err != nil {
		return false
	}

	return bytes.Equal(left, right)
}

// canonicalDefinition renders a definition as deterministic JSON with
// volatile fields stripped. The JSON round-trip also normalizes numeric
// types inside node parameters so that a freshly rendered template compares
// equal to the same definition read back from the engine.
func canonicalDefinition(d *WorkflowDefinition) ([]byte, error) {
	nodes := make([]*Node, 0, len(d.Nodes))

	for _, node := range d.Nodes {
		stripped := *node
		stripped.ID = ""
		stripped.Position = nil
		nodes = append(nodes, &stripped)
	}

	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Name < nodes[j].Name
	})

	normalized := WorkflowDefinition{
		Name:        d.Name,
		Nodes:       nodes,
		Connections: d.Connections,
		Settings:    d.Settings,
	}

	raw, err := json.Marshal(normalized)
	if err != nil {
		return nil, err
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}

	return json.Marshal(generic)
}

// NodeByName returns the node with the given name, or nil.
func (d *WorkflowDefinition) NodeByName(name string) *Node {
	for _, node := range d.Nodes {
		if node.Name == name {
			return node
		}
	}

	return nil
}
