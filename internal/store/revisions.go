package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rendis/canvasflow/pkg/schema"
)

// Save is the persistence API: it upserts the workflow's current snapshot,
// bumps its version and appends a revision. An unknown workflow is created.
func (s *LibSQLStore) Save(ctx context.Context, workflowID string, snap schema.Snapshot) (*schema.SavedRecord, error) {
	if workflowID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow id is required")
	}
	nodes, edges, err := marshalSnapshot(snap)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapStore(err, "begin save tx")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	// The upsert is the first statement so the write lock is held before the
	// version is read back.
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO workflows (id, version, nodes, edges, created_at, updated_at) VALUES (?, 1, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET version = workflows.version + 1, nodes = excluded.nodes,
		   edges = excluded.edges, updated_at = excluded.updated_at`,
		workflowID, nodes, edges, now, now,
	); err != nil {
		return nil, wrapStore(err, "upsert workflow")
	}

	var version int64
	if err := tx.QueryRowContext(ctx, `SELECT version FROM workflows WHERE id = ?`, workflowID).Scan(&version); err != nil {
		return nil, wrapStore(err, "read version")
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO workflow_revisions (workflow_id, version, nodes, edges, saved_at) VALUES (?, ?, ?, ?, ?)`,
		workflowID, version, nodes, edges, now,
	); err != nil {
		return nil, wrapStore(err, "insert revision")
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapStore(err, "commit save")
	}
	return &schema.SavedRecord{WorkflowID: workflowID, Version: version, SavedAt: now}, nil
}

// ListRevisions returns the newest revisions first. limit <= 0 returns all.
func (s *LibSQLStore) ListRevisions(ctx context.Context, workflowID string, limit int) ([]*Revision, error) {
	query := `SELECT workflow_id, version, nodes, edges, saved_at FROM workflow_revisions
		 WHERE workflow_id = ? ORDER BY version DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, wrapStore(err, "list revisions")
	}
	defer rows.Close()

	var out []*Revision
	for rows.Next() {
		r, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRevision returns one saved snapshot.
func (s *LibSQLStore) GetRevision(ctx context.Context, workflowID string, version int64) (*Revision, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT workflow_id, version, nodes, edges, saved_at FROM workflow_revisions
		 WHERE workflow_id = ? AND version = ?`, workflowID, version)
	r, err := scanRevision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("revision", fmt.Sprintf("%s@%d", workflowID, version))
	}
	return r, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRevision(row rowScanner) (*Revision, error) {
	r := &Revision{}
	var nodes, edges string
	if err := row.Scan(&r.WorkflowID, &r.Version, &nodes, &edges, &r.SavedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, wrapStore(err, "scan revision")
	}
	snap, err := unmarshalSnapshot(nodes, edges)
	if err != nil {
		return nil, err
	}
	r.Snapshot = snap
	return r, nil
}

var _ Store = (*LibSQLStore)(nil)
