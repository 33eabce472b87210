// Package workflow defines the remote Workflow Engine's document model: the
// node graph, its typed connection map, and the structural helpers used to
// locate and patch nodes inside a document. The JSON shape matches the
// engine's API exactly; documents built or patched here are submitted verbatim.
package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/devjn1998/projetoEvolutionApiChatWoot/errors"
)

// Port kinds used in the connection map. Main carries the data path; the
// ai_* ports are attachment-style auxiliary wiring into an agent node.
const (
	PortMain          = "main"
	PortLanguageModel = "ai_languageModel"
	PortMemory        = "ai_memory"
	PortTool          = "ai_tool"
)

// Workflow is a remote workflow document. ID is assigned by the engine on
// creation and doubles as the local mirror's primary key; the two systems are
// never allowed to diverge in identity.
type Workflow struct {
	ID           string         `json:"id,omitempty"`
	Name         string         `json:"name"`
	Active       bool           `json:"active,omitempty"`
	Nodes        []Node         `json:"nodes"`
	Connections  Connections    `json:"connections"`
	Settings     map[string]any `json:"settings"`
	StaticData   map[string]any `json:"staticData,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	TriggerCount int            `json:"triggerCount,omitempty"`
	Meta         map[string]any `json:"meta,omitempty"`
	CreatedAt    *time.Time     `json:"createdAt,omitempty"`
	UpdatedAt    *time.Time     `json:"updatedAt,omitempty"`
}

// Node is one step of behavior inside a workflow graph. Name doubles as the
// connection-map key and must be unique within a workflow.
type Node struct {
	ID          string                   `json:"id"`
	Name        string                   `json:"name"`
	Type        string                   `json:"type"`
	TypeVersion float64                  `json:"typeVersion"`
	Position    [2]float64               `json:"position"`
	Parameters  map[string]any           `json:"parameters,omitempty"`
	Credentials map[string]CredentialRef `json:"credentials,omitempty"`
}

// CredentialRef binds a node to a remote credential by engine-assigned ID.
// Name is the deterministic label the credential was created under; it is the
// only lookup key left if the ID is ever lost.
type CredentialRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Link is one directed edge target in the connection map.
type Link struct {
	Node  string `json:"node"`
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// Connections maps source node name -> port kind -> output slots -> targets.
type Connections map[string]map[string][][]Link

// Connect appends an edge from source to target on the given port kind,
// creating intermediate maps as needed. All edges land on output slot 0,
// which is how the engine's own editor wires these templates.
func (c Connections) Connect(source, port, target string) {
	if c[source] == nil {
		c[source] = make(map[string][][]Link)
	}
	slots := c[source][port]
	if len(slots) == 0 {
		slots = [][]Link{{}}
	}
	slots[0] = append(slots[0], Link{Node: target, Type: port, Index: 0})
	c[source][port] = slots
}

// UpdatePayload is the projection of a workflow document accepted by the
// engine's update endpoint. Transient and local-only fields must be stripped
// before transmission.
type UpdatePayload struct {
	Name        string         `json:"name"`
	Nodes       []Node         `json:"nodes"`
	Connections Connections    `json:"connections"`
	Settings    map[string]any `json:"settings"`
}

// ForUpdate projects the document onto the field set the engine accepts for
// updates.
func (w *Workflow) ForUpdate() UpdatePayload {
	settings := w.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	return UpdatePayload{
		Name:        w.Name,
		Nodes:       w.Nodes,
		Connections: w.Connections,
		Settings:    settings,
	}
}

// NodeByName returns the node with the given name, or nil.
func (w *Workflow) NodeByName(name string) *Node {
	for i := range w.Nodes {
		if w.Nodes[i].Name == name {
			return &w.Nodes[i]
		}
	}
	return nil
}

// NodesOfKind returns all nodes the classifier assigns the given kind.
func (w *Workflow) NodesOfKind(kind NodeKind) []*Node {
	var out []*Node
	for i := range w.Nodes {
		if ClassifyNode(w.Nodes[i]) == kind {
			out = append(out, &w.Nodes[i])
		}
	}
	return out
}

// Validate checks the document is internally consistent before submission:
// node names unique and non-empty, every connection endpoint resolvable.
func (w *Workflow) Validate() error {
	if w.Name == "" {
		return errors.WrapInvalid(fmt.Errorf("workflow name cannot be empty"),
			"workflow", "Validate", "validation")
	}

	names := make(map[string]bool, len(w.Nodes))
	for i, node := range w.Nodes {
		if node.ID == "" {
			return errors.WrapInvalid(
				fmt.Errorf("node at index %d has empty ID", i),
				"workflow", "Validate", "node ID validation")
		}
		if node.Name == "" {
			return errors.WrapInvalid(
				fmt.Errorf("node %q has empty name", node.ID),
				"workflow", "Validate", "node name validation")
		}
		if node.Type == "" {
			return errors.WrapInvalid(
				fmt.Errorf("node %q has empty type", node.Name),
				"workflow", "Validate", "node type validation")
		}
		if names[node.Name] {
			return errors.WrapInvalid(
				fmt.Errorf("duplicate node name: %s", node.Name),
				"workflow", "Validate", "duplicate node name detected")
		}
		names[node.Name] = true
	}

	for source, ports := range w.Connections {
		if !names[source] {
			return errors.WrapInvalid(
				fmt.Errorf("connection source references non-existent node: %s", source),
				"workflow", "Validate", "connection source validation")
		}
		for port, slots := range ports {
			for _, slot := range slots {
				for _, link := range slot {
					if !names[link.Node] {
						return errors.WrapInvalid(
							fmt.Errorf("connection %s/%s references non-existent target node: %s",
								source, port, link.Node),
							"workflow", "Validate", "connection target validation")
					}
				}
			}
		}
	}

	return nil
}

// MarshalDocument serializes the workflow for schema validation and logging.
func (w *Workflow) MarshalDocument() ([]byte, error) {
	data, err := json.Marshal(w)
	if err != nil {
		return nil, errors.WrapInvalid(err, "workflow", "MarshalDocument", "serialize")
	}
	return data, nil
}
