package panel

// Event types pushed to an attached panel, in the order a call produces
// them: SESSION_STARTED once on attach, then transcript/analysis events for
// the session's lifetime, then SUMMARY_FINAL on teardown.
const (
	EventSessionStarted    = "SESSION_STARTED"
	EventTranscriptPartial = "TRANSCRIPT_PARTIAL"
	EventTranscriptFinal   = "TRANSCRIPT_FINAL"
	EventSummaryUpdate     = "SUMMARY_UPDATE"
	EventObjectionDetected = "OBJECTION_DETECTED"
	EventRAGContext        = "RAG_CONTEXT"
	EventSuggestion        = "SUGGESTION"
	EventSummaryFinal      = "SUMMARY_FINAL"
)

type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type SessionStartedPayload struct {
	SessionID string `json:"sessionId"`
	CallID    string `json:"callId"`
}
