package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kdimtricp/pairjudge/internal/database"
	"github.com/kdimtricp/pairjudge/internal/judgment"
	"github.com/kdimtricp/pairjudge/internal/session"
	"github.com/kdimtricp/pairjudge/internal/storage"
)

// apiError carries the HTTP status chosen for an error.
type apiError struct {
	Status int
	Code   string
	Err    error
}

func (e *apiError) Error() string { return e.Err.Error() }
func (e *apiError) Unwrap() error { return e.Err }

func badRequest(msg string) *apiError {
	return &apiError{Status: http.StatusBadRequest, Code: "invalid_request", Err: errors.New(msg)}
}

// classify maps core errors onto statuses.
func classify(err error) *apiError {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae
	}
	switch {
	case errors.Is(err, session.ErrNotFound):
		return &apiError{Status: http.StatusUnauthorized, Code: "session_required", Err: err}
	case errors.Is(err, judgment.ErrNotFound), errors.Is(err, database.ErrNotFound), errors.Is(err, storage.ErrInvalidPath):
		return &apiError{Status: http.StatusNotFound, Code: "not_found", Err: err}
	case errors.Is(err, judgment.ErrInvalidAction):
		return &apiError{Status: http.StatusBadRequest, Code: "invalid_action", Err: err}
	case errors.Is(err, judgment.ErrConfiguration):
		return &apiError{Status: http.StatusInternalServerError, Code: "configuration_error", Err: err}
	case errors.Is(err, judgment.ErrPersistence):
		return &apiError{Status: http.StatusServiceUnavailable, Code: "persistence_error", Err: err}
	}
	return &apiError{Status: http.StatusInternalServerError, Code: "internal_error", Err: err}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (app *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae := classify(err)
	msg := ae.Err.Error()
	if ae.Status >= http.StatusInternalServerError {
		app.Log.Error("request failed", "method", r.Method, "path", r.URL.Path, "code", ae.Code, "error", err)
		msg = http.StatusText(ae.Status)
	}
	writeJSON(w, ae.Status, errorBody{Error: msg, Code: ae.Code})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
