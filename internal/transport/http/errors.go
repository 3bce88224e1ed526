package http

import (
	"encoding/json"
	"net/http"

	"quiz-attempt-service/internal/domain"
)

type errorPayload struct {
	Code    domain.Kind `json:"code"`
	Message string      `json:"message"`
}

func newErrorPayload(err error) errorPayload {
	return errorPayload{Code: domain.KindOf(err), Message: err.Error()}
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict, domain.KindInvalidState:
		return http.StatusConflict
	case domain.KindExpired:
		return http.StatusGone
	case domain.KindInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	payload := newErrorPayload(err)
	writeJSON(w, statusFor(payload.Code), payload)
}
