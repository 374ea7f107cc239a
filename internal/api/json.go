package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/dagaz/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error   string   `json:"error" validate:"required"`
	Kind    string   `json:"kind,omitempty" example:"schema_violation"`
	Reasons []string `json:"reasons,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps err onto a status and an error body. Unclassified errors
// are logged and reported as internal.
func writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, status, errResponse{Error: "internal error", Kind: "internal"})
		return
	}
	writeJSON(w, status, errResponse{
		Error:   err.Error(),
		Kind:    apperr.KindName(err),
		Reasons: apperr.Reasons(err),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrGenerationTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, apperr.ErrGeneration),
		errors.Is(err, apperr.ErrMalformedOutput),
		errors.Is(err, apperr.ErrSchemaViolation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
