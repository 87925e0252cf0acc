package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Hades0413/Asistente-voice-backend/pkg/core"
)

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeErrorJSON(w http.ResponseWriter, reqID string, kind core.ErrorKind, message string, status int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: errorBody{
		Type:      string(kind),
		Message:   message,
		RequestID: reqID,
	}})
}

func statusForKind(kind core.ErrorKind) int {
	switch kind {
	case core.ErrProtocolViolation:
		return http.StatusBadRequest
	case core.ErrUnknownSession:
		return http.StatusNotFound
	case core.ErrUpstreamFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
