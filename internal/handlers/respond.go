// Package handlers wires the HTTP surface: auth login/logout, code
// execution, and the autosave endpoints. Handlers are constructed as
// closures over their dependencies.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hgu-oj/backend/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders a classified error; unclassified errors become a
// generic 500 with the cause logged server-side only.
func writeError(w http.ResponseWriter, err error) {
	kind := apperr.AsKind(err)
	status := apperr.HTTPStatus(kind)

	message := "internal server error"
	var ae *apperr.Error
	if errors.As(err, &ae) {
		message = ae.Message
	}
	if status >= http.StatusInternalServerError {
		slog.Error("[HTTP] Handler failed", "status", status, "error", err)
	}

	writeJSON(w, status, map[string]string{"detail": message})
}
