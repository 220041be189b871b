package adapthttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"weighttracker/internal/domain"
	"weighttracker/internal/worker"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

// writeServiceError maps a service error to its HTTP status. Messages of
// unclassified errors are logged, not returned.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, worker.ErrStopped) {
		writeError(w, http.StatusServiceUnavailable, errors.New("shutting down"))
		return
	}
	switch domain.KindOf(err) {
	case domain.KindValidation:
		writeError(w, http.StatusBadRequest, err)
	case domain.KindConflict:
		writeError(w, http.StatusConflict, err)
	case domain.KindNotFound:
		writeError(w, http.StatusNotFound, err)
	case domain.KindStorage:
		writeError(w, http.StatusInternalServerError, err)
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func parseJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

func withNoCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
