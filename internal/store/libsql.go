package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/canvasflow/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Workflows ---

func (s *LibSQLStore) CreateWorkflow(ctx context.Context, wf *Workflow) error {
	nodes, edges, err := marshalSnapshot(wf.Snapshot)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	wf.CreatedAt = timeOr(wf.CreatedAt, now)
	wf.UpdatedAt = timeOr(wf.UpdatedAt, now)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, name, description, version, nodes, edges, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		wf.ID, wf.Name, nullStr(wf.Description), wf.Version, nodes, edges, wf.CreatedAt, wf.UpdatedAt,
	)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "unique") {
		return schema.NewErrorf(schema.ErrCodeConflict, "workflow %q already exists", wf.ID).WithCause(err)
	}
	return wrapStore(err, "create workflow")
}

func (s *LibSQLStore) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	wf := &Workflow{}
	var (
		description        sql.NullString
		nodesJSON, edgesJS string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, version, nodes, edges, created_at, updated_at
		 FROM workflows WHERE id = ?`, id,
	).Scan(&wf.ID, &wf.Name, &description, &wf.Version, &nodesJSON, &edgesJS, &wf.CreatedAt, &wf.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("workflow", id)
	}
	if err != nil {
		return nil, wrapStore(err, "get workflow")
	}
	wf.Description = description.String
	wf.Snapshot, err = unmarshalSnapshot(nodesJSON, edgesJS)
	if err != nil {
		return nil, err
	}
	return wf, nil
}

func (s *LibSQLStore) UpdateWorkflow(ctx context.Context, id string, update WorkflowUpdate) error {
	var sets []string
	var args []any

	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, nullStr(*update.Description))
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	query := fmt.Sprintf("UPDATE workflows SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapStore(err, "update workflow")
	}
	return checkRowsAffected(res, "workflow", id)
}

func (s *LibSQLStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*WorkflowSummary, error) {
	var where []string
	var args []any

	if filter.NameContains != "" {
		where = append(where, "name LIKE ?")
		args = append(args, "%"+filter.NameContains+"%")
	}

	query := "SELECT id, name, version, json_array_length(nodes), updated_at FROM workflows"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapStore(err, "list workflows")
	}
	defer rows.Close()

	var out []*WorkflowSummary
	for rows.Next() {
		w := &WorkflowSummary{}
		if err := rows.Scan(&w.ID, &w.Name, &w.Version, &w.Nodes, &w.UpdatedAt); err != nil {
			return nil, wrapStore(err, "scan workflow")
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// DeleteWorkflow removes a workflow with its revisions and simulation results.
func (s *LibSQLStore) DeleteWorkflow(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapStore(err, "begin delete tx")
	}
	defer tx.Rollback()

	for _, table := range []string{"simulation_results", "workflow_revisions"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE workflow_id = ?", id); err != nil {
			return wrapStore(err, "delete "+table)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return wrapStore(err, "delete workflow")
	}
	if err := checkRowsAffected(res, "workflow", id); err != nil {
		return err
	}
	return wrapStore(tx.Commit(), "commit delete")
}

// --- Simulation results ---

// AppendSimulationResults stores a batch of results in one transaction.
func (s *LibSQLStore) AppendSimulationResults(ctx context.Context, workflowID string, results []schema.SimulationResult) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapStore(err, "begin results tx")
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM workflows WHERE id = ?`, workflowID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return storeNotFound("workflow", workflowID)
	}
	if err != nil {
		return wrapStore(err, "check workflow")
	}

	for _, r := range results {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO simulation_results (workflow_id, run_id, node_id, status, summary, output, error, finished_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			workflowID, nullStr(r.RunID), r.NodeID, string(r.Status), r.Summary,
			nullRaw(r.Output), nullStr(r.Error), timeOr(r.FinishedAt, time.Now().UTC()),
		)
		if err != nil {
			return wrapStore(err, "insert simulation result")
		}
	}
	return wrapStore(tx.Commit(), "commit simulation results")
}

// ListSimulationResults returns results oldest first.
func (s *LibSQLStore) ListSimulationResults(ctx context.Context, workflowID string, filter ResultFilter) ([]schema.SimulationResult, error) {
	query := `SELECT run_id, node_id, status, summary, output, error, finished_at
		 FROM simulation_results WHERE workflow_id = ?`
	args := []any{workflowID}
	if filter.RunID != "" {
		query += " AND run_id = ?"
		args = append(args, filter.RunID)
	}
	query += " ORDER BY id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapStore(err, "list simulation results")
	}
	defer rows.Close()

	var out []schema.SimulationResult
	for rows.Next() {
		var (
			r                  schema.SimulationResult
			runID, output, msg sql.NullString
			status             string
		)
		if err := rows.Scan(&runID, &r.NodeID, &status, &r.Summary, &output, &msg, &r.FinishedAt); err != nil {
			return nil, wrapStore(err, "scan simulation result")
		}
		r.RunID = runID.String
		r.Status = schema.NodeStatus(status)
		r.Output = rawOrNil(output)
		r.Error = msg.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- Helpers ---

func marshalSnapshot(snap schema.Snapshot) (nodes, edges string, err error) {
	if snap.Nodes == nil {
		snap.Nodes = []schema.Node{}
	}
	if snap.Edges == nil {
		snap.Edges = []schema.Edge{}
	}
	n, err := json.Marshal(snap.Nodes)
	if err != nil {
		return "", "", fmt.Errorf("marshal nodes: %w", err)
	}
	e, err := json.Marshal(snap.Edges)
	if err != nil {
		return "", "", fmt.Errorf("marshal edges: %w", err)
	}
	return string(n), string(e), nil
}

func unmarshalSnapshot(nodes, edges string) (schema.Snapshot, error) {
	var snap schema.Snapshot
	if err := json.Unmarshal([]byte(nodes), &snap.Nodes); err != nil {
		return snap, fmt.Errorf("unmarshal nodes: %w", err)
	}
	if err := json.Unmarshal([]byte(edges), &snap.Edges); err != nil {
		return snap, fmt.Errorf("unmarshal edges: %w", err)
	}
	return snap, nil
}

func storeNotFound(resource, id string) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func wrapStore(err error, op string) error {
	if err == nil {
		return nil
	}
	return schema.NewErrorf(schema.ErrCodeStore, "%s: %v", op, err).WithCause(err)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrapStore(err, "rows affected")
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOr(t, fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}
