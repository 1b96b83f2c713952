package store

import (
	"time"

	"github.com/rendis/canvasflow/pkg/schema"
)

// Workflow is the persisted representation of a workflow canvas.
type Workflow struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Version     int64           `json:"version"`
	Snapshot    schema.Snapshot `json:"snapshot"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Meta returns the identity used when exporting the workflow.
func (w *Workflow) Meta() schema.WorkflowMeta {
	return schema.WorkflowMeta{ID: w.ID, Name: w.Name, Version: w.Version}
}

// WorkflowSummary is a Workflow without its snapshot, for listings.
type WorkflowSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Version   int64     `json:"version"`
	Nodes     int       `json:"nodes"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WorkflowFilter controls workflow listing.
type WorkflowFilter struct {
	NameContains string
	Limit        int
	Offset       int
}

// WorkflowUpdate holds the optional metadata fields to change.
type WorkflowUpdate struct {
	Name        *string
	Description *string
}

// Revision is one saved snapshot in a workflow's history.
type Revision struct {
	WorkflowID string          `json:"workflow_id"`
	Version    int64           `json:"version"`
	Snapshot   schema.Snapshot `json:"snapshot"`
	SavedAt    time.Time       `json:"saved_at"`
}

// ResultFilter controls simulation result listing.
type ResultFilter struct {
	RunID string
	Limit int
}
