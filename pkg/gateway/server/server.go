// Package server wires the gateway together: registry, both WebSocket
// endpoints, the STT bridge, the analysis pipeline, and the call
// orchestrator, behind one middleware chain.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Hades0413/Asistente-voice-backend/pkg/gateway/config"
	"github.com/Hades0413/Asistente-voice-backend/pkg/gateway/handlers"
	"github.com/Hades0413/Asistente-voice-backend/pkg/gateway/lifecycle"
	"github.com/Hades0413/Asistente-voice-backend/pkg/gateway/media"
	"github.com/Hades0413/Asistente-voice-backend/pkg/gateway/mw"
	"github.com/Hades0413/Asistente-voice-backend/pkg/gateway/orchestrator"
	"github.com/Hades0413/Asistente-voice-backend/pkg/gateway/panel"
	"github.com/Hades0413/Asistente-voice-backend/pkg/gateway/registry"
	"github.com/Hades0413/Asistente-voice-backend/pkg/pipeline"
	"github.com/Hades0413/Asistente-voice-backend/pkg/voice/stt"
	"github.com/Hades0413/Asistente-voice-backend/pkg/voice/telephony"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	lifecycle    *lifecycle.Lifecycle
	registry     *registry.Registry
	panel        *panel.Gateway
	bridge       *stt.Bridge
	orchestrator *orchestrator.Orchestrator
	httpClient   *http.Client
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: cfg.UpstreamConnectTimeout,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: cfg.UpstreamResponseHeaderTimeout,
		},
	}

	reg := registry.New(logger)

	panelGW := &panel.Gateway{
		Registry:     reg,
		Logger:       logger,
		PingInterval: cfg.WSPingInterval,
		WriteTimeout: cfg.WSWriteTimeout,
	}

	bridge := stt.NewBridge(
		&stt.DeepgramDialer{
			APIKey:  cfg.STTAPIKey,
			BaseURL: cfg.STTWSURL,
			Logger:  logger,
			Dialer: &websocket.Dialer{
				HandshakeTimeout:  cfg.WSHandshakeTimeout,
				EnableCompression: false,
			},
		},
		stt.StreamConfig{
			Model:      cfg.STTModel,
			Language:   cfg.STTLanguage,
			Encoding:   "mulaw",
			SampleRate: cfg.STTSampleRate,
			Channels:   1,
		},
		logger,
	)

	deps := pipeline.Dependencies{
		Registry: reg,
		Emitter:  panelGW,
		Logger:   logger,
	}
	if cfg.GeminiAPIKey != "" {
		client, err := pipeline.NewGenAIClient(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		deps.Classifier = &pipeline.GenAIClassifier{Client: client, Model: cfg.GeminiModel}
		deps.Suggester = &pipeline.GenAISuggester{Client: client, Model: cfg.GeminiModel}
	}
	pipe := pipeline.New(deps, pipeline.Config{Cooldown: cfg.ObjectionCooldown})

	caller := &telephony.Client{
		AccountSID:     cfg.TelephonyAccountSID,
		AuthToken:      cfg.TelephonyAuthToken,
		BaseURL:        cfg.TelephonyBaseURL,
		FromNumber:     cfg.TelephonyFromNumber,
		MediaStreamURL: cfg.PublicWSBaseURL + "/ws/media",
		HTTPClient:     httpClient,
		Logger:         logger,
	}

	orch := orchestrator.New(orchestrator.Dependencies{
		Registry:        reg,
		STT:             bridge,
		Pipeline:        pipe,
		Caller:          caller,
		Logger:          logger,
		PublicWSBaseURL: cfg.PublicWSBaseURL,
	})

	s := &Server{
		cfg:          cfg,
		logger:       logger,
		mux:          http.NewServeMux(),
		lifecycle:    &lifecycle.Lifecycle{},
		registry:     reg,
		panel:        panelGW,
		bridge:       bridge,
		orchestrator: orch,
		httpClient:   httpClient,
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Lifecycle: s.lifecycle})

	calls := handlers.CallsHandler{
		Orchestrator: s.orchestrator,
		Lifecycle:    s.lifecycle,
		Logger:       s.logger,
	}
	s.mux.Handle("/v1/calls", calls)
	s.mux.Handle("/v1/calls/", calls)

	s.mux.Handle("/ws/media", &media.Handler{
		Registry:        s.registry,
		Audio:           s.bridge,
		Logger:          s.logger,
		PingInterval:    s.cfg.WSPingInterval,
		WriteTimeout:    s.cfg.WSWriteTimeout,
		MaxMessageBytes: s.cfg.WSMaxMessageBytes,
	})
	s.mux.Handle("/ws/panel", s.panel)
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// Drain flips the lifecycle to draining and ends every active call, waiting
// until the teardowns finish or ctx expires.
func (s *Server) Drain(ctx context.Context, reason string) bool {
	s.lifecycle.Drain()
	return s.orchestrator.EndAll(ctx, reason)
}

// ActiveCalls reports the number of calls currently in flight.
func (s *Server) ActiveCalls() int {
	return s.orchestrator.ActiveCalls()
}
