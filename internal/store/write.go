package store

import (
	"context"
	"fmt"

	"github.com/thinkerbot/tap-sub003/internal/ir"
)

// BeginRun records the start of a run. The run's Seq is assigned by the
// store as one past the highest existing seq, so ListRuns returns runs in
// the order they were begun.
//
// Beginning a run that already exists (a resumed Run after Stop) moves it
// back to running and keeps its seq.
func (s *Store) BeginRun(ctx context.Context, run ir.RunRecord) error {
	status := run.Status
	if status == "" {
		status = ir.RunRunning
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, seq, workflow_name, workflow_hash, status, engine_version, schema_version)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM runs), ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, error = ''
	`,
		run.ID,
		run.WorkflowName,
		run.WorkflowHash,
		status,
		ir.EngineVersion,
		ir.SchemaVersion,
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// FinishRun records the outcome of a run.
func (s *Store) FinishRun(ctx context.Context, runID, status, errMsg string, steps int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, error = ?, steps = ?
		WHERE id = ?
	`, status, errMsg, steps, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return &RunNotFoundError{RunID: runID}
	}
	return nil
}

// WriteAudit inserts an audit record and its source edges.
// Uses ON CONFLICT DO NOTHING for idempotency - rewriting an audit with the
// same content-addressed ID is silently ignored.
//
// Every source must already be stored (foreign key constraint); the
// Recorder writes ancestors first.
func (s *Store) WriteAudit(ctx context.Context, rec ir.AuditRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write audit: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audits
		(id, run_id, ordinal, key_kind, key, seq, value_json, value_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.RunID,
		rec.Ordinal,
		rec.KeyKind,
		rec.Key,
		rec.Seq,
		nullString(rec.ValueJSON),
		rec.ValueText,
	)
	if err != nil {
		return fmt.Errorf("write audit: %w", err)
	}

	for i, src := range rec.Sources {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO audit_sources (audit_id, position, source_id)
			VALUES (?, ?, ?)
			ON CONFLICT DO NOTHING
		`, rec.ID, i, src)
		if err != nil {
			return fmt.Errorf("write audit source %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write audit: commit: %w", err)
	}
	return nil
}

// WriteAggregate records that an audit reached the aggregator.
// Idempotent on (run_id, position).
func (s *Store) WriteAggregate(ctx context.Context, rec ir.AggregateRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO aggregates (run_id, position, node, audit_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, rec.RunID, rec.Position, rec.Node, rec.AuditID)
	if err != nil {
		return fmt.Errorf("write aggregate: %w", err)
	}
	return nil
}
