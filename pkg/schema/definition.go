package schema

// Definition is the document handed to the durable-workflow runtime.
// UI-only fields (selection, transient status, sizes) are stripped.
type Definition struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Version        int64            `json:"version"`
	Nodes          []DefinitionNode `json:"nodes"`
	Edges          []Edge           `json:"edges"`
	ExecutionOrder []string         `json:"executionOrder"`
}

// DefinitionNode is a node as the runtime sees it.
type DefinitionNode struct {
	ID       string         `json:"id"`
	Type     NodeKind       `json:"type"`
	Label    string         `json:"label"`
	ParentID string         `json:"parentId,omitempty"`
	Enabled  bool           `json:"enabled"`
	Position Position       `json:"position"`
	Config   map[string]any `json:"config"`
}

// WorkflowMeta identifies the workflow being exported.
type WorkflowMeta struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version int64  `json:"version"`
}
