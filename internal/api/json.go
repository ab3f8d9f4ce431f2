package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/starford/pledge/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
	Code  string `json:"code,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps a domain error onto its HTTP status. Errors outside the
// taxonomy are logged and hidden behind a generic 500.
func writeError(w http.ResponseWriter, op string, err error) {
	if !apperr.Known(err) {
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errResponse{Error: "internal error", Code: "internal"})
		return
	}
	writeJSON(w, apperr.HTTPStatus(err), errResponse{Error: err.Error(), Code: apperr.Code(err)})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "invalid JSON body", Code: "invalid_input"})
		return false
	}
	return true
}
