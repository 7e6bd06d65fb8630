package models

// PortSpec describes one named input or output of a node type.
type PortSpec struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required,omitempty"`
}

// NodeTypeInfo is the self-description a node executor publishes through the
// registry: identity, ports and an optional JSON schema for its Data config.
type NodeTypeInfo struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Inputs      []PortSpec     `json:"inputs,omitempty"`
	Outputs     []PortSpec     `json:"outputs,omitempty"`
	Schema      map[string]any `json:"schema,omitempty"`
}
