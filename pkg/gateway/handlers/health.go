package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Hades0413/Asistente-voice-backend/pkg/gateway/config"
	"github.com/Hades0413/Asistente-voice-backend/pkg/gateway/lifecycle"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK       bool     `json:"ok"`
		Draining bool     `json:"draining"`
		Issues   []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	if h.Config.STTAPIKey == "" {
		issues = append(issues, "stt api key not configured")
	}
	if h.Config.TelephonyAccountSID == "" || h.Config.TelephonyAuthToken == "" {
		issues = append(issues, "telephony credentials not configured")
	}
	if h.Config.WSPingInterval <= 0 || h.Config.WSWriteTimeout <= 0 {
		issues = append(issues, "websocket timeouts must be > 0")
	}
	if h.Config.ObjectionCooldown <= 0 {
		issues = append(issues, "objection cooldown must be > 0")
	}

	draining := h.Lifecycle.IsDraining()

	ok := len(issues) == 0 && !draining
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:       ok,
		Draining: draining,
		Issues:   issues,
	})
}
