package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/hgu-oj/backend/internal/judge"
)

// WorkerLister is the fleet view the admin surface reads from.
type WorkerLister interface {
	Snapshot(ctx context.Context) ([]judge.Worker, error)
}

type judgeServerView struct {
	ID            int       `json:"id"`
	ServiceURL    string    `json:"service_url"`
	CPUCore       int       `json:"cpu_core"`
	TaskNumber    int       `json:"task_number"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	IsDisabled    bool      `json:"is_disabled"`
	Status        string    `json:"status"`
}

// ListJudgeServers reports the worker fleet with derived health status.
// Admin-only; mounted behind the role gate.
func ListJudgeServers(fleet WorkerLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workers, err := fleet.Snapshot(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}

		now := time.Now()
		views := make([]judgeServerView, 0, len(workers))
		for _, worker := range workers {
			views = append(views, judgeServerView{
				ID:            worker.ID,
				ServiceURL:    worker.ServiceURL,
				CPUCore:       worker.CPUCore,
				TaskNumber:    worker.TaskNumber,
				LastHeartbeat: worker.LastHeartbeat,
				IsDisabled:    worker.IsDisabled,
				Status:        worker.Status(now),
			})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"servers": views})
	}
}
