// Package stt maintains one upstream streaming speech-to-text connection
// per call session and dispatches partial/final transcripts back through
// caller-supplied callbacks.
package stt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Hades0413/Asistente-voice-backend/pkg/core"
)

// Callbacks receive transcript events for one session. They are invoked
// from the upstream read goroutine; implementations must not block.
type Callbacks struct {
	OnPartial func(text string)
	OnFinal   func(text string)
	OnError   func(err error)
}

// Upstream is one live streaming connection to the STT provider.
type Upstream interface {
	SendAudio(audio []byte) error
	Close() error
}

// Dialer opens upstream connections. Implemented by DeepgramDialer;
// replaced by fakes in tests.
type Dialer interface {
	Dial(ctx context.Context, cfg StreamConfig, cb Callbacks) (Upstream, error)
}

// StreamConfig describes the audio the upstream should expect.
type StreamConfig struct {
	Model      string
	Language   string
	Encoding   string
	SampleRate int
	Channels   int
}

// Bridge owns the session-id -> upstream mapping. A bridge entry exists iff
// Start succeeded and Stop has not yet completed for that session.
type Bridge struct {
	dialer Dialer
	cfg    StreamConfig
	logger *slog.Logger

	mu      sync.Mutex
	streams map[string]Upstream
}

func NewBridge(dialer Dialer, cfg StreamConfig, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		dialer:  dialer,
		cfg:     cfg,
		logger:  logger,
		streams: make(map[string]Upstream),
	}
}

// Start dials the upstream for sessionID and registers the callbacks. The
// dial happens outside the bridge lock. A duplicate start replaces the
// previous upstream and closes it.
func (b *Bridge) Start(ctx context.Context, sessionID string, cb Callbacks) error {
	up, err := b.dialer.Dial(ctx, b.cfg, cb)
	if err != nil {
		return core.WrapError(core.ErrUpstreamFailure, fmt.Sprintf("stt start for %s", sessionID), err)
	}

	b.mu.Lock()
	prev := b.streams[sessionID]
	b.streams[sessionID] = up
	b.mu.Unlock()

	if prev != nil {
		b.logger.Warn("stt upstream replaced", "session_id", sessionID)
		_ = prev.Close()
	}
	b.logger.Info("stt upstream started", "session_id", sessionID)
	return nil
}

// PushAudio forwards one raw audio chunk. No bridge for the session, or a
// write failure, drops the chunk silently: audio is time-ordered and stale
// audio is worthless, so there is no buffering and no backpressure.
func (b *Bridge) PushAudio(sessionID string, audio []byte) {
	b.mu.Lock()
	up := b.streams[sessionID]
	b.mu.Unlock()
	if up == nil {
		return
	}
	if err := up.SendAudio(audio); err != nil {
		b.logger.Debug("stt audio dropped", "session_id", sessionID, "error", err)
	}
}

// Stop closes the upstream for sessionID and discards bridge state. Safe to
// call when no bridge exists.
func (b *Bridge) Stop(sessionID string) {
	b.mu.Lock()
	up := b.streams[sessionID]
	delete(b.streams, sessionID)
	b.mu.Unlock()
	if up == nil {
		return
	}
	_ = up.Close()
	b.logger.Info("stt upstream stopped", "session_id", sessionID)
}

// Active reports whether a live upstream exists for sessionID.
func (b *Bridge) Active(sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.streams[sessionID] != nil
}
