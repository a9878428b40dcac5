package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hgu-oj/backend/internal/apperr"
)

// writeError renders a classified error as the JSON error envelope.
// Unclassified errors surface as 500 with a generic message; the cause is
// logged, never leaked.
func writeError(w http.ResponseWriter, err error) {
	kind := apperr.AsKind(err)
	status := apperr.HTTPStatus(kind)

	message := "internal server error"
	var ae *apperr.Error
	if errors.As(err, &ae) {
		message = ae.Message
	}
	if status >= http.StatusInternalServerError {
		slog.Error("[HTTP] Request failed", "status", status, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": message})
}
