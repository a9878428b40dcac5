// Package judge contains the judge-worker fleet view, the load-aware
// scheduler that leases workers, and the execution dispatcher that forwards
// run requests to them.
package judge

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// heartbeatWindow is how stale a worker heartbeat may be before the worker
// is considered abnormal and excluded from scheduling.
const heartbeatWindow = 6 * time.Second

// Worker statuses derived from heartbeat liveness and the disabled flag.
const (
	StatusNormal   = "normal"
	StatusAbnormal = "abnormal"
)

// Worker is one row of the judge_server table. TaskNumber is only ever
// mutated through the scheduler's atomic statements.
type Worker struct {
	ID            int
	ServiceURL    string
	CPUCore       int
	TaskNumber    int
	LastHeartbeat time.Time
	IsDisabled    bool
}

// Status derives the worker's health at the given instant.
func (w Worker) Status(now time.Time) string {
	if w.IsDisabled || now.Sub(w.LastHeartbeat) > heartbeatWindow {
		return StatusAbnormal
	}
	return StatusNormal
}

// capacity is the fleet's overload heuristic: a worker may carry up to
// twice its core count in concurrent tasks.
func (w Worker) capacity() int { return w.CPUCore * 2 }

// Registry is the read-mostly projection of worker rows.
type Registry struct {
	db *sql.DB
}

func NewRegistry(db *sql.DB) *Registry {
	return &Registry{db: db}
}

// Snapshot returns all workers ordered by task_number ascending, ties by
// id. Read-only; no locks are taken.
func (r *Registry) Snapshot(ctx context.Context) ([]Worker, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, service_url, cpu_core, task_number, last_heartbeat, is_disabled
		FROM judge_server
		ORDER BY task_number, id`)
	if err != nil {
		return nil, fmt.Errorf("query judge servers: %w", err)
	}
	defer rows.Close()

	return scanWorkers(rows)
}

func scanWorkers(rows *sql.Rows) ([]Worker, error) {
	var workers []Worker
	for rows.Next() {
		var w Worker
		if err := rows.Scan(&w.ID, &w.ServiceURL, &w.CPUCore, &w.TaskNumber, &w.LastHeartbeat, &w.IsDisabled); err != nil {
			return nil, fmt.Errorf("scan judge server: %w", err)
		}
		workers = append(workers, w)
	}
	return workers, rows.Err()
}
