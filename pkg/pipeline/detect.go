package pipeline

import (
	"context"
	"strings"
)

// Candidate is one scored objection hypothesis.
type Candidate struct {
	Type    string  `json:"type"`
	Score   float64 `json:"score"`
	Matched string  `json:"matched"`
}

// Objection candidate types.
const (
	CandidatePrice     = "price"
	CandidateTrust     = "trust"
	CandidateTiming    = "timing"
	CandidateNeed      = "need"
	CandidateAuthority = "authority"
)

type keywordRule struct {
	candidateType string
	weight        float64
	keywords      []string
}

// Spanish-language sales objection catalog. Multi-word phrases score higher
// than single keywords; the context boost rewards repetition across the
// recent utterance window.
var defaultRules = []keywordRule{
	{CandidatePrice, 1.0, []string{"caro", "cara", "carísimo", "precio", "costoso", "muy costosa", "no puedo pagar", "no tengo dinero", "presupuesto", "descuento"}},
	{CandidateTrust, 1.0, []string{"no confío", "desconfianza", "estafa", "no los conozco", "garantía", "será verdad"}},
	{CandidateTiming, 1.0, []string{"ahora no", "más adelante", "otro momento", "no es buen momento", "llámeme luego", "después"}},
	{CandidateNeed, 1.0, []string{"no necesito", "no me interesa", "ya tengo", "no lo uso", "para qué"}},
	{CandidateAuthority, 1.0, []string{"consultarlo", "mi esposo", "mi esposa", "mi jefe", "mi socio", "lo tengo que hablar"}},
}

const (
	detectThreshold  = 1.0
	contextBoost     = 0.5
	phraseWeightBump = 0.5
)

// KeywordDetector scores the current utterance against the candidate
// catalog and returns the highest-scoring candidate above threshold.
type KeywordDetector struct {
	rules []keywordRule
}

func NewKeywordDetector() *KeywordDetector {
	return &KeywordDetector{rules: defaultRules}
}

func (d *KeywordDetector) Detect(text string, recent []string) (Candidate, bool) {
	normalized := normalize(text)
	if normalized == "" {
		return Candidate{}, false
	}
	context := normalize(strings.Join(recent, " "))

	var best Candidate
	for _, rule := range d.rules {
		var score float64
		var matched string
		for _, kw := range rule.keywords {
			if !strings.Contains(normalized, kw) {
				continue
			}
			w := rule.weight
			if strings.Contains(kw, " ") {
				w += phraseWeightBump
			}
			score += w
			if matched == "" {
				matched = kw
			}
		}
		if score == 0 {
			continue
		}
		if matched != "" && strings.Count(context, matched) > 1 {
			score += contextBoost
		}
		if score > best.Score {
			best = Candidate{Type: rule.candidateType, Score: score, Matched: matched}
		}
	}
	if best.Score < detectThreshold {
		return Candidate{}, false
	}
	return best, true
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ThresholdClassifier confirms a candidate locally by score. It is the
// default confirmation step when no LLM classifier is configured.
type ThresholdClassifier struct {
	MinScore float64
}

func (c *ThresholdClassifier) Confirm(_ context.Context, cand Candidate, _ []string) (bool, error) {
	min := c.MinScore
	if min <= 0 {
		min = detectThreshold
	}
	return cand.Score >= min, nil
}
