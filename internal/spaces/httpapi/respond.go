package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/bdobrica/spaces/internal/spaces/lifecycle"
)

// errorBody is the envelope every failure response uses.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			slog.Error("failed to encode response", "err", err)
		}
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeLifecycleError decodes a lifecycle error kind into a status code.
// This is the single place the error taxonomy meets HTTP; client mistakes
// are answered without being logged as faults.
func writeLifecycleError(w http.ResponseWriter, r *http.Request, err error) {
	switch lifecycle.KindOf(err) {
	case lifecycle.KindUnsupportedType,
		lifecycle.KindInvalidPassword,
		lifecycle.KindAlreadyRunning,
		lifecycle.KindAlreadyStopped:
		writeError(w, http.StatusBadRequest, err.Error())
	case lifecycle.KindQuotaExceeded:
		writeError(w, http.StatusForbidden, err.Error())
	case lifecycle.KindNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case lifecycle.KindConflictingSession:
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
