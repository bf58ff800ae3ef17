package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/thinkerbot/tap-sub003/internal/audit"
	"github.com/thinkerbot/tap-sub003/internal/ir"
)

// RunNotFoundError reports a run id with no record in the store.
type RunNotFoundError struct {
	RunID string
}

func (e *RunNotFoundError) Error() string {
	return fmt.Sprintf("run %q not found", e.RunID)
}

// Kind returns the error kind for structured output.
func (e *RunNotFoundError) Kind() string { return "RunNotFoundError" }

// IsRunNotFound reports whether err is or wraps a RunNotFoundError.
func IsRunNotFound(err error) bool {
	var nf *RunNotFoundError
	return errors.As(err, &nf)
}

// Run is a recorded run read back from the store, with its audit DAG
// rebuilt.
type Run struct {
	Record ir.RunRecord

	// Audits holds every stored audit in recording order. Sources always
	// precede the audits built from them.
	Audits []*audit.Audit

	// Results holds the aggregated audits in arrival order.
	Results []Result

	ids map[*audit.Audit]string
}

// Result is one aggregated audit and the node it was collected under.
type Result struct {
	Node  string
	Audit *audit.Audit
}

// ID returns the stored id of a, or "" if a is not part of the run.
func (r *Run) ID(a *audit.Audit) string {
	return r.ids[a]
}

// Values returns the aggregated values collected under node.
func (r *Run) Values(node string) []any {
	var out []any
	for _, res := range r.Results {
		if res.Node == node {
			out = append(out, res.Audit.Value())
		}
	}
	return out
}

// ResultAudits returns the aggregated audits in arrival order.
func (r *Run) ResultAudits() []*audit.Audit {
	out := make([]*audit.Audit, len(r.Results))
	for i, res := range r.Results {
		out[i] = res.Audit
	}
	return out
}

// ReadRunRecord retrieves a single run by ID.
// Returns RunNotFoundError if not found.
func (s *Store) ReadRunRecord(ctx context.Context, runID string) (ir.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, seq, workflow_name, workflow_hash, status, error, steps
		FROM runs
		WHERE id = ?
	`, runID)

	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, &RunNotFoundError{RunID: runID}
	}
	return rec, err
}

// ListRuns returns every recorded run ordered by seq.
// Returns an empty slice (not nil) if no runs exist.
func (s *Store) ListRuns(ctx context.Context) ([]ir.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, workflow_name, workflow_hash, status, error, steps
		FROM runs
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []ir.RunRecord{}
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the most recently begun run.
// Returns RunNotFoundError when the store holds no runs.
func (s *Store) LatestRun(ctx context.Context) (ir.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, seq, workflow_name, workflow_hash, status, error, steps
		FROM runs
		ORDER BY seq DESC
		LIMIT 1
	`)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, &RunNotFoundError{RunID: "(latest)"}
	}
	return rec, err
}

// ReadAudits returns the audit records of a run ordered by ordinal, each
// with its source ids in position order.
// Returns an empty slice (not nil) if the run has no audits.
func (s *Store) ReadAudits(ctx context.Context, runID string) ([]ir.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, ordinal, key_kind, key, seq, value_json, value_text
		FROM audits
		WHERE run_id = ?
		ORDER BY ordinal ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query audits: %w", err)
	}
	defer rows.Close()

	records := []ir.AuditRecord{}
	index := make(map[string]int)
	for rows.Next() {
		var (
			rec       ir.AuditRecord
			valueJSON sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Ordinal, &rec.KeyKind, &rec.Key, &rec.Seq, &valueJSON, &rec.ValueText); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		rec.ValueJSON = valueJSON.String
		rec.Sources = []string{}
		index[rec.ID] = len(records)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audits: %w", err)
	}
	rows.Close() // release the single connection before the next query

	srcRows, err := s.db.QueryContext(ctx, `
		SELECT s.audit_id, s.source_id
		FROM audit_sources s
		JOIN audits a ON s.audit_id = a.id
		WHERE a.run_id = ?
		ORDER BY a.ordinal ASC, s.position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query audit sources: %w", err)
	}
	defer srcRows.Close()

	for srcRows.Next() {
		var auditID, sourceID string
		if err := srcRows.Scan(&auditID, &sourceID); err != nil {
			return nil, fmt.Errorf("scan audit source: %w", err)
		}
		i, ok := index[auditID]
		if !ok {
			continue
		}
		records[i].Sources = append(records[i].Sources, sourceID)
	}
	if err := srcRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit sources: %w", err)
	}
	return records, nil
}

// Aggregates returns the aggregate records of a run in arrival order.
// Returns an empty slice (not nil) if nothing was aggregated.
func (s *Store) Aggregates(ctx context.Context, runID string) ([]ir.AggregateRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, node, audit_id, position
		FROM aggregates
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query aggregates: %w", err)
	}
	defer rows.Close()

	out := []ir.AggregateRecord{}
	for rows.Next() {
		var rec ir.AggregateRecord
		if err := rows.Scan(&rec.RunID, &rec.Node, &rec.AuditID, &rec.Position); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregates: %w", err)
	}
	return out, nil
}

// ReadRun reads a run and rebuilds its audit DAG. The rebuilt audits have
// the stored keys, values and source order, so Trail and Dump render
// exactly as they did for the live run.
func (s *Store) ReadRun(ctx context.Context, runID string) (*Run, error) {
	rec, err := s.ReadRunRecord(ctx, runID)
	if err != nil {
		return nil, err
	}
	records, err := s.ReadAudits(ctx, runID)
	if err != nil {
		return nil, err
	}
	aggs, err := s.Aggregates(ctx, runID)
	if err != nil {
		return nil, err
	}

	run := &Run{
		Record:  rec,
		Audits:  make([]*audit.Audit, 0, len(records)),
		Results: make([]Result, 0, len(aggs)),
		ids:     make(map[*audit.Audit]string, len(records)),
	}
	byID := make(map[string]*audit.Audit, len(records))

	for _, r := range records {
		key, err := unmarshalKey(r.KeyKind, r.Key)
		if err != nil {
			return nil, fmt.Errorf("audit %s: %w", r.ID, err)
		}
		value, err := unmarshalValue(nullString(r.ValueJSON), r.ValueText)
		if err != nil {
			return nil, fmt.Errorf("audit %s: %w", r.ID, err)
		}
		sources := make([]*audit.Audit, len(r.Sources))
		for i, id := range r.Sources {
			src, ok := byID[id]
			if !ok {
				return nil, fmt.Errorf("audit %s: source %s is not recorded before it", r.ID, id)
			}
			sources[i] = src
		}

		a := audit.New(key, value, sources...)
		byID[r.ID] = a
		run.ids[a] = r.ID
		run.Audits = append(run.Audits, a)
	}

	for _, agg := range aggs {
		a, ok := byID[agg.AuditID]
		if !ok {
			return nil, fmt.Errorf("aggregate %d: unknown audit %s", agg.Position, agg.AuditID)
		}
		run.Results = append(run.Results, Result{Node: agg.Node, Audit: a})
	}
	return run, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (ir.RunRecord, error) {
	var rec ir.RunRecord
	err := row.Scan(&rec.ID, &rec.Seq, &rec.WorkflowName, &rec.WorkflowHash, &rec.Status, &rec.Error, &rec.Steps)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, err
	}
	if err != nil {
		return rec, fmt.Errorf("scan run: %w", err)
	}
	return rec, nil
}
