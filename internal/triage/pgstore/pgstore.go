// Package pgstore provides a PostgreSQL implementation of triage.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/sift/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/sift/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// Store persists tasks and triage runs in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store. The caller owns
// the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const (
	taskColumns = `id, title, category, priority, status, tags, created_at, updated_at`
	runColumns  = `id, status, items, report, created_at, confirmed_at, created_task_ids`
)

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// ListTasks returns every task in insertion order.
func (s *Store) ListTasks(ctx context.Context) ([]triage.ExistingTask, error) {
	ctx, span := startSpan(ctx, "pgstore.ListTasks", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY seq`)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query tasks: %w", err))
	}
	defer rows.Close()

	var out []triage.ExistingTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fail(span, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("iterate tasks: %w", err))
	}
	span.SetAttributes(attribute.Int("db.rows", len(out)))
	return out, nil
}

// CreateTasks inserts tasks in one transaction. An existing ID fails the
// whole batch.
func (s *Store) CreateTasks(ctx context.Context, tasks []triage.ExistingTask) error {
	ctx, span := startSpan(ctx, "pgstore.CreateTasks", "INSERT")
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fail(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	if err := insertTasks(ctx, tx, tasks); err != nil {
		return fail(span, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fail(span, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// UpdateTaskStatus sets a task's status. Returns false if no task has id.
func (s *Store) UpdateTaskStatus(ctx context.Context, id string, status triage.Status, at time.Time) (bool, error) {
	ctx, span := startSpan(ctx, "pgstore.UpdateTaskStatus", "UPDATE")
	defer span.End()

	tag, err := s.pool.Exec(ctx, `UPDATE tasks SET status = $2, updated_at = $3 WHERE id = $1`, id, string(status), nullTime(at))
	if err != nil {
		return false, fail(span, fmt.Errorf("update task %s: %w", id, err))
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteDoneTasks removes done tasks last changed before cutoff. A task
// with neither timestamp never matches.
func (s *Store) DeleteDoneTasks(ctx context.Context, cutoff time.Time) ([]triage.ExistingTask, error) {
	ctx, span := startSpan(ctx, "pgstore.DeleteDoneTasks", "DELETE")
	defer span.End()

	rows, err := s.pool.Query(ctx, `WITH gone AS (
			DELETE FROM tasks
			WHERE status = $1 AND COALESCE(updated_at, created_at) < $2
			RETURNING seq, `+taskColumns+`
		)
		SELECT `+taskColumns+` FROM gone ORDER BY seq`,
		string(triage.StatusDone), cutoff,
	)
	if err != nil {
		return nil, fail(span, fmt.Errorf("delete done tasks: %w", err))
	}
	defer rows.Close()

	var out []triage.ExistingTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fail(span, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("iterate deleted tasks: %w", err))
	}
	span.SetAttributes(attribute.Int("db.rows", len(out)))
	return out, nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*triage.Run, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.GetRun", "SELECT")
	defer span.End()

	r, err := scanRun(s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM triage_runs WHERE id = $1`, id))
	if err != nil {
		return nil, false, fail(span, err)
	}
	if r == nil {
		return nil, false, nil
	}
	return r, true, nil
}

// PutRun inserts or replaces a run.
func (s *Store) PutRun(ctx context.Context, r *triage.Run) error {
	ctx, span := startSpan(ctx, "pgstore.PutRun", "UPSERT")
	defer span.End()

	items, report, err := marshalRun(r)
	if err != nil {
		return fail(span, err)
	}

	_, err = s.pool.Exec(ctx, `INSERT INTO triage_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status           = EXCLUDED.status,
			items            = EXCLUDED.items,
			report           = EXCLUDED.report,
			confirmed_at     = EXCLUDED.confirmed_at,
			created_task_ids = EXCLUDED.created_task_ids`,
		r.ID, string(r.Status), items, report, r.CreatedAt, nullTime(r.ConfirmedAt), nonNil(r.CreatedTaskIDs),
	)
	if err != nil {
		return fail(span, fmt.Errorf("upsert run %s: %w", r.ID, err))
	}
	return nil
}

// ConfirmRun flips a pending run to its confirmed state and inserts its
// tasks in one transaction. The status guard on the update makes concurrent
// confirms of the same run succeed at most once.
func (s *Store) ConfirmRun(ctx context.Context, r *triage.Run, tasks []triage.ExistingTask) error {
	ctx, span := startSpan(ctx, "pgstore.ConfirmRun", "UPDATE")
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fail(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	tag, err := tx.Exec(ctx, `UPDATE triage_runs
		SET status = $2, confirmed_at = $3, created_task_ids = $4
		WHERE id = $1 AND status = $5`,
		r.ID, string(r.Status), nullTime(r.ConfirmedAt), nonNil(r.CreatedTaskIDs), string(triage.RunPending),
	)
	if err != nil {
		return fail(span, fmt.Errorf("update run %s: %w", r.ID, err))
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM triage_runs WHERE id = $1)`, r.ID).Scan(&exists); err != nil {
			return fail(span, fmt.Errorf("check run %s: %w", r.ID, err))
		}
		if !exists {
			return triage.ErrRunNotFound
		}
		return triage.ErrAlreadyConfirmed
	}

	if err := insertTasks(ctx, tx, tasks); err != nil {
		return fail(span, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fail(span, fmt.Errorf("commit: %w", err))
	}
	return nil
}

func insertTasks(ctx context.Context, tx pgx.Tx, tasks []triage.ExistingTask) error {
	for _, t := range tasks {
		_, err := tx.Exec(ctx, `INSERT INTO tasks (`+taskColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			t.ID, t.Title, t.Category, t.Priority, string(t.Status), nonNil(t.Tags), nullTime(t.CreatedAt), nullTime(t.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert task %s: %w", t.ID, err)
		}
	}
	return nil
}

func marshalRun(r *triage.Run) (items, report []byte, err error) {
	items, err = json.Marshal(nonNil(r.Items))
	if err != nil {
		return nil, nil, fmt.Errorf("marshal items: %w", err)
	}
	if r.Report != nil {
		report, err = json.Marshal(r.Report)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal report: %w", err)
		}
	}
	return items, report, nil
}

func scanTask(row pgx.Row) (triage.ExistingTask, error) {
	var (
		t         triage.ExistingTask
		status    string
		createdAt *time.Time
		updatedAt *time.Time
	)
	if err := row.Scan(&t.ID, &t.Title, &t.Category, &t.Priority, &status, &t.Tags, &createdAt, &updatedAt); err != nil {
		return triage.ExistingTask{}, fmt.Errorf("scan task: %w", err)
	}
	t.Status = triage.Status(status)
	if createdAt != nil {
		t.CreatedAt = createdAt.UTC()
	}
	if updatedAt != nil {
		t.UpdatedAt = updatedAt.UTC()
	}
	return t, nil
}

// scanRun scans a single row into a triage.Run.
// Returns (nil, nil) when no row is found.
func scanRun(row pgx.Row) (*triage.Run, error) {
	var (
		r           triage.Run
		status      string
		items       []byte
		report      []byte
		confirmedAt *time.Time
	)
	err := row.Scan(&r.ID, &status, &items, &report, &r.CreatedAt, &confirmedAt, &r.CreatedTaskIDs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	r.Status = triage.RunStatus(status)
	r.CreatedAt = r.CreatedAt.UTC()
	if confirmedAt != nil {
		r.ConfirmedAt = confirmedAt.UTC()
	}
	if err := json.Unmarshal(items, &r.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	if len(report) > 0 {
		r.Report = &triage.Report{}
		if err := json.Unmarshal(report, r.Report); err != nil {
			return nil, fmt.Errorf("unmarshal report: %w", err)
		}
	}
	if len(r.CreatedTaskIDs) == 0 {
		r.CreatedTaskIDs = nil
	}
	return &r, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
