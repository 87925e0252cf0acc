package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Hades0413/Asistente-voice-backend/pkg/gateway/config"
	"github.com/Hades0413/Asistente-voice-backend/pkg/gateway/lifecycle"
	"github.com/Hades0413/Asistente-voice-backend/pkg/gateway/orchestrator"
	"github.com/Hades0413/Asistente-voice-backend/pkg/gateway/registry"
	"github.com/Hades0413/Asistente-voice-backend/pkg/voice/stt"
)

type noopTranscriber struct{}

func (noopTranscriber) Start(ctx context.Context, sessionID string, cb stt.Callbacks) error {
	return nil
}
func (noopTranscriber) Stop(sessionID string) {}

type noopAnalyzer struct{}

func (noopAnalyzer) OnPartial(sessionID, text string) {}
func (noopAnalyzer) OnFinal(sessionID, text string)   {}
func (noopAnalyzer) End(sessionID, reason string)     {}

type stubCaller struct {
	ended []string
}

func (c *stubCaller) StartCall(ctx context.Context, phoneNumber, sessionID string) (string, error) {
	return "CA123", nil
}

func (c *stubCaller) EndCall(ctx context.Context, providerCallID string) error {
	c.ended = append(c.ended, providerCallID)
	return nil
}

func newTestCallsHandler(lc *lifecycle.Lifecycle) (CallsHandler, *orchestrator.Orchestrator) {
	orch := orchestrator.New(orchestrator.Dependencies{
		Registry:        registry.New(slog.Default()),
		STT:             noopTranscriber{},
		Pipeline:        noopAnalyzer{},
		Caller:          &stubCaller{},
		Logger:          slog.Default(),
		PublicWSBaseURL: "ws://localhost:8080",
	})
	return CallsHandler{Orchestrator: orch, Lifecycle: lc, Logger: slog.Default()}, orch
}

func TestHealthHandler_OK(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthHandler{}.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "ok\n" {
		t.Fatalf("body=%q, want ok", got)
	}
}

func TestReadyHandler_ReadyAndDraining(t *testing.T) {
	cfg := config.Config{
		STTAPIKey:           "dg-key",
		TelephonyAccountSID: "AC123",
		TelephonyAuthToken:  "secret",
		WSPingInterval:      15 * time.Second,
		WSWriteTimeout:      5 * time.Second,
		ObjectionCooldown:   45 * time.Second,
	}
	lc := &lifecycle.Lifecycle{}
	h := ReadyHandler{Config: cfg, Lifecycle: lc}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200; body=%s", rec.Code, rec.Body.String())
	}

	lc.Drain()
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d while draining, want 503", rec.Code)
	}
	var resp struct {
		OK       bool `json:"ok"`
		Draining bool `json:"draining"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.OK || !resp.Draining {
		t.Fatalf("resp=%+v, want ok=false draining=true", resp)
	}
}

func TestReadyHandler_MissingCredentials(t *testing.T) {
	h := ReadyHandler{Config: config.Config{
		WSPingInterval:    15 * time.Second,
		WSWriteTimeout:    5 * time.Second,
		ObjectionCooldown: 45 * time.Second,
	}, Lifecycle: &lifecycle.Lifecycle{}}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "not configured") {
		t.Fatalf("body=%s, want configuration issues listed", rec.Body.String())
	}
}

func TestCallsHandler_StartCall_Created(t *testing.T) {
	h, orch := newTestCallsHandler(&lifecycle.Lifecycle{})

	body := strings.NewReader(`{"phoneNumber":"+51999888777","agentId":"agent-1"}`)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/calls", body))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d, want 201; body=%s", rec.Code, rec.Body.String())
	}
	var res orchestrator.StartResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.SessionID == "" || res.ProviderCallID != "CA123" {
		t.Fatalf("result=%+v, want session id + provider call id", res)
	}
	if orch.ActiveCalls() != 1 {
		t.Fatalf("active calls=%d, want 1", orch.ActiveCalls())
	}
}

func TestCallsHandler_StartCall_DrainingRejected(t *testing.T) {
	lc := &lifecycle.Lifecycle{}
	lc.Drain()
	h, _ := newTestCallsHandler(lc)

	body := strings.NewReader(`{"phoneNumber":"+51999888777"}`)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/calls", body))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", rec.Code)
	}
}

func TestCallsHandler_StartCall_BadRequests(t *testing.T) {
	h, _ := newTestCallsHandler(&lifecycle.Lifecycle{})

	for _, body := range []string{`not json`, `{}`, `{"phoneNumber":"  "}`} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/calls", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body=%q status=%d, want 400", body, rec.Code)
		}
	}
}

func TestCallsHandler_MethodNotAllowed(t *testing.T) {
	h, _ := newTestCallsHandler(&lifecycle.Lifecycle{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/calls", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d, want 405", rec.Code)
	}
}

func TestCallsHandler_EndCall_NoContentAndIdempotent(t *testing.T) {
	h, orch := newTestCallsHandler(&lifecycle.Lifecycle{})

	res, err := orch.StartCall(context.Background(), orchestrator.StartParams{PhoneNumber: "+51999888777"})
	if err != nil {
		t.Fatalf("StartCall: %v", err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/calls/"+res.SessionID+"?reason=customer_hung_up", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status=%d, want 204", rec.Code)
	}
	if orch.ActiveCalls() != 0 {
		t.Fatalf("active calls=%d, want 0", orch.ActiveCalls())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/calls/"+res.SessionID, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("repeat status=%d, want 204", rec.Code)
	}
}

func TestCallsHandler_EndCall_MissingSessionID(t *testing.T) {
	h, _ := newTestCallsHandler(&lifecycle.Lifecycle{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/calls/", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rec.Code)
	}
}
