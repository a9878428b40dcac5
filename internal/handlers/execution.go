package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/hgu-oj/backend/internal/apperr"
	"github.com/hgu-oj/backend/internal/judge"
	"github.com/hgu-oj/backend/internal/metrics"
)

// Execution defaults applied when the client omits limits.
const (
	defaultMaxCPUTimeMS = 5000
	defaultMaxMemoryMB  = 512
)

// RunCode dispatches a one-shot execution to the judge fleet. Worker-side
// failures come back as a 200 with an error envelope; only service-side
// failures use HTTP error codes.
func RunCode(dispatcher *judge.Dispatcher, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Language string `json:"language"`
			Code     string `json:"code"`
			Input    string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Language == "" {
			writeError(w, apperr.New(apperr.BadRequest, "bad request"))
			return
		}

		start := time.Now()
		result, err := dispatcher.Run(r.Context(), judge.RunRequest{
			Language:    req.Language,
			Source:      req.Code,
			Stdin:       req.Input,
			MaxCPUTime:  defaultMaxCPUTimeMS,
			MaxMemoryMB: defaultMaxMemoryMB,
		})
		if err != nil {
			recordDispatch(m, "error", start)
			writeError(w, err)
			return
		}

		recordDispatch(m, dispatchOutcome(result), start)
		writeJSON(w, http.StatusOK, result)
	}
}

func dispatchOutcome(result judge.RunResult) string {
	if isErr, _ := result["err"].(bool); !isErr {
		return "ok"
	}
	if data, _ := result["data"].(string); data == "No available judge server" {
		return "no_server"
	}
	return "worker_error"
}

func recordDispatch(m *metrics.Metrics, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.DispatchTotal.WithLabelValues(outcome).Inc()
	m.DispatchSeconds.Observe(time.Since(start).Seconds())
}
