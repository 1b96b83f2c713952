package store

import (
	"context"

	"github.com/rendis/canvasflow/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Workflows
	CreateWorkflow(ctx context.Context, wf *Workflow) error
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	UpdateWorkflow(ctx context.Context, id string, update WorkflowUpdate) error
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*WorkflowSummary, error)
	DeleteWorkflow(ctx context.Context, id string) error

	// Snapshots (persistence API)
	Save(ctx context.Context, workflowID string, snap schema.Snapshot) (*schema.SavedRecord, error)
	ListRevisions(ctx context.Context, workflowID string, limit int) ([]*Revision, error)
	GetRevision(ctx context.Context, workflowID string, version int64) (*Revision, error)

	// Simulation results
	AppendSimulationResults(ctx context.Context, workflowID string, results []schema.SimulationResult) error
	ListSimulationResults(ctx context.Context, workflowID string, filter ResultFilter) ([]schema.SimulationResult, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
