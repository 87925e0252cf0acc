// Package registry owns the in-memory store of active call sessions. It is
// the single source of truth for session identity and per-session mutable
// state; every mutation happens under the registry lock and no lock is held
// across a network call.
package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Hades0413/Asistente-voice-backend/pkg/core"
)

const (
	maxRecentUtterances = 12
	maxSummaryChars     = 900
)

// PanelConn is the write surface of an attached panel socket. Satisfied by
// *websocket.Conn; the registry never reads from it.
type PanelConn interface {
	WriteJSON(v any) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

type CreateParams struct {
	PhoneNumber string
	AgentID     string
}

// Info is an immutable snapshot of a session's identity fields.
type Info struct {
	SessionID      string
	CallID         string
	PhoneNumber    string
	AgentID        string
	ProviderCallID string
}

type Utterance struct {
	Text string
	At   time.Time
}

// MemoryView is a copy of a session's rolling memory taken under the
// registry lock.
type MemoryView struct {
	Recent  []Utterance
	Summary string
}

type session struct {
	info       Info
	panel      PanelConn
	utterances []Utterance
	summary    string
	cooldowns  map[string]time.Time
}

type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session
	logger   *slog.Logger
	now      func() time.Time
}

func New(logger *slog.Logger) *Registry {
	return NewWithClock(logger, time.Now)
}

// NewWithClock constructs a registry with an injectable clock for cooldown
// and utterance timestamps.
func NewWithClock(logger *slog.Logger, now func() time.Time) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Registry{
		sessions: make(map[string]*session),
		logger:   logger,
		now:      now,
	}
}

// Create generates a fresh session with distinct session and call ids.
func (r *Registry) Create(p CreateParams) Info {
	info := Info{
		SessionID:   core.NewID("sess"),
		CallID:      core.NewID("call"),
		PhoneNumber: p.PhoneNumber,
		AgentID:     p.AgentID,
	}

	r.mu.Lock()
	r.sessions[info.SessionID] = &session{
		info:      info,
		cooldowns: make(map[string]time.Time),
	}
	r.mu.Unlock()

	r.logger.Info("session created", "session_id", info.SessionID, "call_id", info.CallID)
	return info
}

func (r *Registry) Get(sessionID string) (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return Info{}, false
	}
	return s.info, true
}

// AttachPanel records conn as the session's panel socket, last-attach-wins.
// The previously attached socket (if any) is returned so the caller can
// close it; the registry itself never closes a socket it replaces.
func (r *Registry) AttachPanel(sessionID string, conn PanelConn) (prev PanelConn, info Info, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, found := r.sessions[sessionID]
	if !found {
		return nil, Info{}, false
	}
	prev = s.panel
	s.panel = conn
	return prev, s.info, true
}

// PanelConn returns the currently attached panel socket, if any.
func (r *Registry) PanelConn(sessionID string) (PanelConn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.panel == nil {
		return nil, false
	}
	return s.panel, true
}

// SetProviderCallID records the telephony provider's call id once the call
// has been placed.
func (r *Registry) SetProviderCallID(sessionID, providerCallID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	s.info.ProviderCallID = providerCallID
	return true
}

// AppendUtterance records a finalized utterance into the session's rolling
// memory, evicting the oldest entry beyond capacity, and folds the text into
// the running summary. Returns the updated memory snapshot.
func (r *Registry) AppendUtterance(sessionID, text string) (MemoryView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return MemoryView{}, false
	}

	s.utterances = append(s.utterances, Utterance{Text: text, At: r.now()})
	if len(s.utterances) > maxRecentUtterances {
		s.utterances = s.utterances[len(s.utterances)-maxRecentUtterances:]
	}
	s.summary = foldSummary(s.summary, text)

	return MemoryView{Recent: copyUtterances(s.utterances), Summary: s.summary}, true
}

func (r *Registry) Summary(sessionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return "", false
	}
	return s.summary, true
}

// InCooldown reports whether candidateType triggered within the window.
func (r *Registry) InCooldown(sessionID, candidateType string, window time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	last, hit := s.cooldowns[candidateType]
	return hit && r.now().Sub(last) < window
}

// ReserveCooldown atomically checks and records a trigger for candidateType.
// Returns false when the candidate is still inside the window (nothing is
// recorded) or the session is unknown.
func (r *Registry) ReserveCooldown(sessionID, candidateType string, window time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	now := r.now()
	if last, hit := s.cooldowns[candidateType]; hit && now.Sub(last) < window {
		return false
	}
	s.cooldowns[candidateType] = now
	return true
}

// Close removes the session and closes any attached panel socket with a
// normal-closure code. Unknown ids are a no-op. The socket close happens
// outside the registry lock.
func (r *Registry) Close(sessionID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	if s.panel != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed")
		_ = s.panel.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = s.panel.Close()
	}
	r.logger.Info("session closed", "session_id", sessionID)
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func copyUtterances(in []Utterance) []Utterance {
	out := make([]Utterance, len(in))
	copy(out, in)
	return out
}

// foldSummary appends text to the running summary and trims it by suffix
// retention so the most recent conversation is kept.
func foldSummary(summary, text string) string {
	if summary == "" {
		summary = text
	} else {
		summary = summary + " " + text
	}
	runes := []rune(summary)
	if len(runes) > maxSummaryChars {
		summary = string(runes[len(runes)-maxSummaryChars:])
	}
	return summary
}
