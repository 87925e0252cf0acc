// Package orchestrator coordinates the lifecycle of one analyzed call:
// session creation, speech-to-text attachment, outbound dialing, and
// best-effort teardown of whatever was set up.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Hades0413/Asistente-voice-backend/pkg/core"
	"github.com/Hades0413/Asistente-voice-backend/pkg/gateway/registry"
	"github.com/Hades0413/Asistente-voice-backend/pkg/voice/stt"
)

// Transcriber is the speech-to-text surface the orchestrator drives.
// Implemented by *stt.Bridge.
type Transcriber interface {
	Start(ctx context.Context, sessionID string, cb stt.Callbacks) error
	Stop(sessionID string)
}

// Analyzer consumes transcripts and finalizes sessions. Implemented by
// *pipeline.Pipeline.
type Analyzer interface {
	OnPartial(sessionID, text string)
	OnFinal(sessionID, text string)
	End(sessionID, reason string)
}

// Caller places and hangs up calls at the telephony provider. Implemented
// by *telephony.Client.
type Caller interface {
	StartCall(ctx context.Context, phoneNumber, sessionID string) (providerCallID string, err error)
	EndCall(ctx context.Context, providerCallID string) error
}

// StartParams are the caller-supplied inputs for a new call.
type StartParams struct {
	PhoneNumber string
	AgentID     string
}

// StartResult tells the client where to attach for live events.
type StartResult struct {
	SessionID          string `json:"sessionId"`
	CallID             string `json:"callId"`
	ProviderCallID     string `json:"providerCallId,omitempty"`
	PanelAttachAddress string `json:"panelAttachAddress"`
}

// Dependencies are the collaborators an orchestrator drives.
type Dependencies struct {
	Registry *registry.Registry
	STT      Transcriber
	Pipeline Analyzer
	Caller   Caller
	Tracker  *Tracker
	Logger   *slog.Logger

	// PublicWSBaseURL is the externally reachable ws:// or wss:// base the
	// panel attach address is built from, without a trailing slash.
	PublicWSBaseURL string
}

type Orchestrator struct {
	registry *registry.Registry
	stt      Transcriber
	pipeline Analyzer
	caller   Caller
	tracker  *Tracker
	logger   *slog.Logger
	wsBase   string

	mu          sync.Mutex
	unregisters map[string]func()
}

func New(deps Dependencies) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Tracker == nil {
		deps.Tracker = NewTracker()
	}
	return &Orchestrator{
		registry:    deps.Registry,
		stt:         deps.STT,
		pipeline:    deps.Pipeline,
		caller:      deps.Caller,
		tracker:     deps.Tracker,
		logger:      deps.Logger,
		wsBase:      deps.PublicWSBaseURL,
		unregisters: make(map[string]func()),
	}
}

// StartCall creates the session, attaches speech-to-text, and places the
// outbound call. Any failure after session creation tears down whatever was
// already set up before returning.
func (o *Orchestrator) StartCall(ctx context.Context, p StartParams) (StartResult, error) {
	phone := strings.TrimSpace(p.PhoneNumber)
	if phone == "" {
		return StartResult{}, core.NewError(core.ErrProtocolViolation, "phoneNumber is required")
	}

	info := o.registry.Create(registry.CreateParams{
		PhoneNumber: phone,
		AgentID:     strings.TrimSpace(p.AgentID),
	})
	sessionID := info.SessionID

	cb := stt.Callbacks{
		OnPartial: func(text string) { o.pipeline.OnPartial(sessionID, text) },
		OnFinal:   func(text string) { o.pipeline.OnFinal(sessionID, text) },
		OnError: func(err error) {
			o.logger.Error("stt stream error", "session_id", sessionID, "error", err)
		},
	}
	if err := o.stt.Start(ctx, sessionID, cb); err != nil {
		o.abortStart(sessionID, "STT_START_FAILED")
		return StartResult{}, core.WrapError(core.ErrUpstreamFailure, "start transcription", err)
	}

	providerCallID, err := o.caller.StartCall(ctx, phone, sessionID)
	if err != nil {
		o.stt.Stop(sessionID)
		o.abortStart(sessionID, "VOIP_START_FAILED")
		return StartResult{}, core.WrapError(core.ErrUpstreamFailure, "start call", err)
	}
	o.registry.SetProviderCallID(sessionID, providerCallID)

	unregister := o.tracker.Register(sessionID, Handle{
		End: func(reason string) { _ = o.EndCall(context.Background(), sessionID, reason) },
	})
	o.mu.Lock()
	o.unregisters[sessionID] = unregister
	o.mu.Unlock()

	o.logger.Info("call started",
		"session_id", sessionID,
		"call_id", info.CallID,
		"provider_call_id", providerCallID,
	)

	return StartResult{
		SessionID:          sessionID,
		CallID:             info.CallID,
		ProviderCallID:     providerCallID,
		PanelAttachAddress: fmt.Sprintf("%s/ws/panel?sessionId=%s", o.wsBase, sessionID),
	}, nil
}

// abortStart rolls back a partially started call. The pipeline End is a
// no-op toward the panel (nothing attached yet) but finalizes session state
// with the failure reason before the registry entry is removed.
func (o *Orchestrator) abortStart(sessionID, reason string) {
	o.pipeline.End(sessionID, reason)
	o.registry.Close(sessionID)
	o.logger.Warn("call start aborted", "session_id", sessionID, "reason", reason)
}

// EndCall tears down a call end to end. Every step runs even when an
// earlier one fails; calling it again after the session is gone is a no-op.
func (o *Orchestrator) EndCall(ctx context.Context, sessionID, reason string) error {
	info, ok := o.registry.Get(sessionID)
	if !ok {
		return nil
	}

	var errs []error
	if info.ProviderCallID != "" {
		if err := o.caller.EndCall(ctx, info.ProviderCallID); err != nil {
			o.logger.Error("end provider call", "session_id", sessionID, "error", err)
			errs = append(errs, fmt.Errorf("end provider call: %w", err))
		}
	}
	o.stt.Stop(sessionID)
	o.pipeline.End(sessionID, reason)
	o.registry.Close(sessionID)

	o.mu.Lock()
	unregister := o.unregisters[sessionID]
	delete(o.unregisters, sessionID)
	o.mu.Unlock()
	if unregister != nil {
		unregister()
	}

	o.logger.Info("call ended", "session_id", sessionID, "reason", reason)
	return errors.Join(errs...)
}

// ActiveCalls reports how many calls are currently in flight.
func (o *Orchestrator) ActiveCalls() int {
	return o.tracker.Count()
}

// EndAll ends every active call with the given reason and waits for the
// teardowns to finish or ctx to expire.
func (o *Orchestrator) EndAll(ctx context.Context, reason string) bool {
	o.tracker.EndAll(reason)
	return o.tracker.Wait(ctx)
}
