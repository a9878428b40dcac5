package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/hgu-oj/backend/internal/apperr"
	"github.com/hgu-oj/backend/internal/autosave"
	"github.com/hgu-oj/backend/internal/metrics"
	"github.com/hgu-oj/backend/internal/middleware"
)

func slotFromRequest(r *http.Request, language string) (autosave.Slot, error) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		return autosave.Slot{}, apperr.New(apperr.Unauthenticated, "not authenticated")
	}
	problemID, err := strconv.Atoi(mux.Vars(r)["problem_id"])
	if err != nil {
		return autosave.Slot{}, apperr.New(apperr.BadRequest, "invalid problem id")
	}
	if language == "" {
		return autosave.Slot{}, apperr.New(apperr.BadRequest, "language is required")
	}
	return autosave.Slot{
		UserID:    principal.UserID,
		ProblemID: problemID,
		Language:  language,
	}, nil
}

// SaveCode buffers the submitted code and arms the debounce timer; durable
// persistence happens when the timer expires.
func SaveCode(buffer *autosave.Buffer, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Language string `json:"language"`
			Code     string `json:"code"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperr.New(apperr.BadRequest, "bad request"))
			return
		}

		slot, err := slotFromRequest(r, req.Language)
		if err != nil {
			writeError(w, err)
			return
		}

		if err := buffer.Save(r.Context(), slot, req.Code); err != nil {
			writeError(w, err)
			return
		}
		if m != nil {
			m.SavesTotal.Inc()
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// GetCode returns the freshest code for the slot: buffered if present,
// else the durable copy, else empty.
func GetCode(buffer *autosave.Buffer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slot, err := slotFromRequest(r, r.URL.Query().Get("language"))
		if err != nil {
			writeError(w, err)
			return
		}

		code, err := buffer.Load(r.Context(), slot)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"code": code})
	}
}
