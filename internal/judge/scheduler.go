package judge

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Lease is a transient reservation on a judge worker. The holder must call
// Release exactly once on every exit path; the counter on the worker row is
// the number of outstanding leases.
type Lease struct {
	ID              int
	ServiceURL      string
	CPUCore         int
	TaskNumberAfter int

	release func(ctx context.Context) error
}

// Release decrements the worker's task counter in a fresh short
// transaction. Safe to call from a defer; repeated calls are no-ops.
func (l *Lease) Release(ctx context.Context) {
	if l == nil || l.release == nil {
		return
	}
	rel := l.release
	l.release = nil
	if err := rel(ctx); err != nil {
		// A failed release leaks one count until an operator resets the
		// fleet counters; there is no automatic reaper.
		slog.Error("[Scheduler] Lease release failed", "worker_id", l.ID, "error", err)
	}
}

// Scheduler selects the least-loaded live worker and accounts for the
// selection atomically. Database-side row locks serialize concurrent
// acquirers across service replicas; no application-level mutex is
// involved.
type Scheduler struct {
	db *sql.DB
}

func NewScheduler(db *sql.DB) *Scheduler {
	return &Scheduler{db: db}
}

// Acquire leases the least-loaded normal worker, or returns (nil, nil)
// when every candidate is saturated or unhealthy.
//
// The selection and the counter increment commit in one transaction:
// candidate rows are locked FOR UPDATE so two concurrent acquirers see
// disjoint pre-increment snapshots.
func (s *Scheduler) Acquire(ctx context.Context) (*Lease, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin acquire tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, service_url, cpu_core, task_number, last_heartbeat, is_disabled
		FROM judge_server
		WHERE is_disabled = false
		ORDER BY task_number, id
		FOR UPDATE`)
	if err != nil {
		return nil, fmt.Errorf("lock judge servers: %w", err)
	}
	workers, err := scanWorkers(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	picked := pickWorker(workers, time.Now())
	if picked == nil {
		return nil, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE judge_server SET task_number = task_number + 1 WHERE id = $1`,
		picked.ID); err != nil {
		return nil, fmt.Errorf("increment task_number: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit acquire tx: %w", err)
	}

	return &Lease{
		ID:              picked.ID,
		ServiceURL:      picked.ServiceURL,
		CPUCore:         picked.CPUCore,
		TaskNumberAfter: picked.TaskNumber + 1,
		release:         s.releaseWorker(picked.ID),
	}, nil
}

// pickWorker applies the selection policy to a locked, pre-sorted snapshot:
// drop abnormal workers, then take the first one under its capacity.
// Deterministic — no randomization, so behavior is reproducible.
func pickWorker(workers []Worker, now time.Time) *Worker {
	for i := range workers {
		w := workers[i]
		if w.Status(now) != StatusNormal {
			continue
		}
		if w.TaskNumber <= w.capacity() {
			return &w
		}
	}
	return nil
}

func (s *Scheduler) releaseWorker(id int) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin release tx: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx,
			`UPDATE judge_server SET task_number = task_number - 1 WHERE id = $1`,
			id); err != nil {
			return fmt.Errorf("decrement task_number: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit release tx: %w", err)
		}
		return nil
	}
}
