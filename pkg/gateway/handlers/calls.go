package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Hades0413/Asistente-voice-backend/pkg/core"
	"github.com/Hades0413/Asistente-voice-backend/pkg/gateway/lifecycle"
	"github.com/Hades0413/Asistente-voice-backend/pkg/gateway/mw"
	"github.com/Hades0413/Asistente-voice-backend/pkg/gateway/orchestrator"
)

const maxCallBodyBytes = 16 * 1024

// CallsHandler serves /v1/calls: POST places a new analyzed call, DELETE on
// /v1/calls/{sessionID} ends one.
type CallsHandler struct {
	Orchestrator *orchestrator.Orchestrator
	Lifecycle    *lifecycle.Lifecycle
	Logger       *slog.Logger
}

func (h CallsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())

	switch r.Method {
	case http.MethodPost:
		h.startCall(w, r, reqID)
	case http.MethodDelete:
		h.endCall(w, r, reqID)
	default:
		writeErrorJSON(w, reqID, core.ErrProtocolViolation, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h CallsHandler) startCall(w http.ResponseWriter, r *http.Request, reqID string) {
	if h.Lifecycle.IsDraining() {
		writeErrorJSON(w, reqID, core.ErrTransientFrame, "server is draining", http.StatusServiceUnavailable)
		return
	}

	type startReq struct {
		PhoneNumber string `json:"phoneNumber"`
		AgentID     string `json:"agentId"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxCallBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErrorJSON(w, reqID, core.ErrProtocolViolation, "failed to read request body", http.StatusBadRequest)
		return
	}

	var req startReq
	if err := json.Unmarshal(body, &req); err != nil {
		writeErrorJSON(w, reqID, core.ErrProtocolViolation, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.PhoneNumber) == "" {
		writeErrorJSON(w, reqID, core.ErrProtocolViolation, "phoneNumber is required", http.StatusBadRequest)
		return
	}

	result, err := h.Orchestrator.StartCall(r.Context(), orchestrator.StartParams{
		PhoneNumber: req.PhoneNumber,
		AgentID:     req.AgentID,
	})
	if err != nil {
		var coreErr *core.Error
		if errors.As(err, &coreErr) {
			writeErrorJSON(w, reqID, coreErr.Kind, coreErr.Message, statusForKind(coreErr.Kind))
			return
		}
		h.Logger.Error("start call failed", "request_id", reqID, "error", err)
		writeErrorJSON(w, reqID, core.ErrUpstreamFailure, "failed to start call", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(result)
}

func (h CallsHandler) endCall(w http.ResponseWriter, r *http.Request, reqID string) {
	sessionID := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/v1/calls/"))
	if sessionID == "" || strings.Contains(sessionID, "/") {
		writeErrorJSON(w, reqID, core.ErrProtocolViolation, "session id is required", http.StatusBadRequest)
		return
	}

	reason := strings.TrimSpace(r.URL.Query().Get("reason"))
	if reason == "" {
		reason = "ended_by_operator"
	}

	if err := h.Orchestrator.EndCall(r.Context(), sessionID, reason); err != nil {
		h.Logger.Error("end call finished with errors", "request_id", reqID, "session_id", sessionID, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}
