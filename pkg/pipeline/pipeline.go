// Package pipeline consumes finalized transcript text for a session,
// maintains its rolling memory, runs objection detection, and pushes typed
// events to the panel gateway. Nothing in this package may propagate a
// failure back into the STT callback chain that feeds it.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/Hades0413/Asistente-voice-backend/pkg/gateway/panel"
	"github.com/Hades0413/Asistente-voice-backend/pkg/gateway/registry"
)

// Emitter pushes one event toward the panel. Satisfied by *panel.Gateway.
type Emitter interface {
	Send(sessionID, eventType string, payload any)
}

type Detector interface {
	Detect(text string, recent []string) (Candidate, bool)
}

// Classifier is the confirmation step run after keyword detection.
type Classifier interface {
	Confirm(ctx context.Context, cand Candidate, recent []string) (bool, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, cand Candidate) ([]Snippet, error)
}

type Suggester interface {
	Suggest(ctx context.Context, cand Candidate, snippets []Snippet, recent []string) (string, error)
}

// Event payloads.
type TranscriptPayload struct {
	Text string `json:"text"`
	At   int64  `json:"at"`
}

type SummaryPayload struct {
	Summary string `json:"summary"`
	Reason  string `json:"reason,omitempty"`
}

type ObjectionPayload struct {
	Candidate Candidate `json:"candidate"`
	Text      string    `json:"text"`
}

type RAGContextPayload struct {
	CandidateType string    `json:"candidateType"`
	Snippets      []Snippet `json:"snippets"`
}

type SuggestionPayload struct {
	CandidateType string `json:"candidateType"`
	Text          string `json:"text"`
}

const (
	detectContextSize = 10
	stageTimeout      = 10 * time.Second
)

type Config struct {
	Cooldown time.Duration
}

type Pipeline struct {
	registry   *registry.Registry
	emitter    Emitter
	detector   Detector
	classifier Classifier
	retriever  Retriever
	suggester  Suggester
	logger     *slog.Logger
	cooldown   time.Duration
	now        func() time.Time
}

type Dependencies struct {
	Registry   *registry.Registry
	Emitter    Emitter
	Detector   Detector
	Classifier Classifier
	Retriever  Retriever
	Suggester  Suggester
	Logger     *slog.Logger
	Now        func() time.Time
}

func New(deps Dependencies, cfg Config) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Detector == nil {
		deps.Detector = NewKeywordDetector()
	}
	if deps.Classifier == nil {
		deps.Classifier = &ThresholdClassifier{}
	}
	if deps.Retriever == nil {
		deps.Retriever = NewStaticRetriever()
	}
	if deps.Suggester == nil {
		deps.Suggester = TemplateSuggester{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 45 * time.Second
	}
	return &Pipeline{
		registry:   deps.Registry,
		emitter:    deps.Emitter,
		detector:   deps.Detector,
		classifier: deps.Classifier,
		retriever:  deps.Retriever,
		suggester:  deps.Suggester,
		logger:     deps.Logger,
		cooldown:   cfg.Cooldown,
		now:        deps.Now,
	}
}

// OnPartial forwards an interim transcript as a display signal. No state
// mutation.
func (p *Pipeline) OnPartial(sessionID, text string) {
	if _, ok := p.registry.Get(sessionID); !ok {
		return
	}
	p.emitter.Send(sessionID, panel.EventTranscriptPartial, TranscriptPayload{
		Text: text,
		At:   p.now().UnixMilli(),
	})
}

// OnFinal records a finalized utterance, emits the transcript and summary
// events, then runs the detection chain. Failures past the summary emission
// are logged and absorbed.
func (p *Pipeline) OnFinal(sessionID, text string) {
	mem, ok := p.registry.AppendUtterance(sessionID, text)
	if !ok {
		return
	}

	p.emitter.Send(sessionID, panel.EventTranscriptFinal, TranscriptPayload{
		Text: text,
		At:   p.now().UnixMilli(),
	})
	p.emitter.Send(sessionID, panel.EventSummaryUpdate, SummaryPayload{Summary: mem.Summary})

	p.detectAndEmit(sessionID, text, recentTexts(mem.Recent, detectContextSize))
}

func (p *Pipeline) detectAndEmit(sessionID, text string, recent []string) {
	defer func() {
		if v := recover(); v != nil {
			p.logger.Error("objection pipeline panic", "session_id", sessionID, "panic", v)
		}
	}()

	cand, hit := p.detector.Detect(text, recent)
	if !hit {
		return
	}
	if p.registry.InCooldown(sessionID, cand.Type, p.cooldown) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), stageTimeout)
	defer cancel()

	confirmed, err := p.classifier.Confirm(ctx, cand, recent)
	if err != nil {
		p.logger.Warn("objection confirm failed", "session_id", sessionID, "candidate", cand.Type, "error", err)
		return
	}
	if !confirmed {
		return
	}
	if !p.registry.ReserveCooldown(sessionID, cand.Type, p.cooldown) {
		// Lost the race to a concurrent confirmation, or the session is gone.
		return
	}

	p.emitter.Send(sessionID, panel.EventObjectionDetected, ObjectionPayload{Candidate: cand, Text: text})

	snippets, err := p.retriever.Retrieve(ctx, cand)
	if err != nil {
		p.logger.Warn("snippet retrieval failed", "session_id", sessionID, "candidate", cand.Type, "error", err)
		snippets = nil
	}
	p.emitter.Send(sessionID, panel.EventRAGContext, RAGContextPayload{CandidateType: cand.Type, Snippets: snippets})

	suggestion, err := p.suggester.Suggest(ctx, cand, snippets, recent)
	if err != nil {
		p.logger.Warn("suggestion generation failed", "session_id", sessionID, "candidate", cand.Type, "error", err)
		return
	}
	p.emitter.Send(sessionID, panel.EventSuggestion, SuggestionPayload{CandidateType: cand.Type, Text: suggestion})
}

// End emits the closing summary. No-op when the session is already gone.
func (p *Pipeline) End(sessionID, reason string) {
	summary, ok := p.registry.Summary(sessionID)
	if !ok {
		return
	}
	p.emitter.Send(sessionID, panel.EventSummaryFinal, SummaryPayload{Summary: summary, Reason: reason})
}

func recentTexts(utterances []registry.Utterance, n int) []string {
	if len(utterances) > n {
		utterances = utterances[len(utterances)-n:]
	}
	out := make([]string, 0, len(utterances))
	for _, u := range utterances {
		out = append(out, u.Text)
	}
	return out
}
