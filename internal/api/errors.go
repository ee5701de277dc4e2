package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Trina-Dasgupta/portfolio-admin/internal/backend"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/dashboard"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/resource"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/storage"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/tracker"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/upload"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// writeDomainError maps dashboard errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		rv *resource.ValidationError
		uv *upload.ValidationError
		ue *upload.UploadError
		be *backend.BackendError
		ne *backend.NetworkError
	)
	switch {
	case errors.As(err, &rv), errors.As(err, &uv), errors.Is(err, tracker.ErrUnresolved):
		httpError(w, http.StatusUnprocessableEntity, "validation_error", "%v", err)
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, dashboard.ErrNoChanges):
		httpError(w, http.StatusConflict, "no_changes", "%v", err)
	case errors.Is(err, dashboard.ErrSaving):
		httpError(w, http.StatusConflict, "save_in_progress", "%v", err)
	case errors.As(err, &ue):
		httpError(w, http.StatusBadGateway, "upload_error", "%v", err)
	case errors.As(err, &be):
		httpError(w, http.StatusBadGateway, "backend_error", "%s", backend.Message(err, "backend request failed"))
	case errors.As(err, &ne):
		httpError(w, http.StatusBadGateway, "network_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
