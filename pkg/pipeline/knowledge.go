package pipeline

import (
	"context"
	"fmt"
)

// Snippet is one supporting knowledge fragment surfaced to the panel.
type Snippet struct {
	Title string  `json:"title"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// StaticRetriever serves snippets from an in-memory playbook keyed by
// candidate type.
type StaticRetriever struct {
	playbook map[string][]Snippet
}

func NewStaticRetriever() *StaticRetriever {
	return &StaticRetriever{playbook: map[string][]Snippet{
		CandidatePrice: {
			{Title: "Valor sobre precio", Text: "Reencuadra el costo como inversión: compara el precio con el ahorro mensual que genera el servicio.", Score: 0.9},
			{Title: "Planes de pago", Text: "Existen planes de pago fraccionado sin interés a 3 y 6 meses.", Score: 0.7},
		},
		CandidateTrust: {
			{Title: "Prueba social", Text: "Más de 2.000 clientes activos; comparte dos casos de la misma industria del prospecto.", Score: 0.85},
			{Title: "Garantía", Text: "Garantía de devolución de 30 días sin preguntas.", Score: 0.8},
		},
		CandidateTiming: {
			{Title: "Costo de esperar", Text: "Cuantifica lo que pierde el prospecto por cada mes sin el servicio.", Score: 0.8},
		},
		CandidateNeed: {
			{Title: "Diagnóstico", Text: "Pregunta por el proceso actual antes de contrastar con el resultado esperado.", Score: 0.75},
		},
		CandidateAuthority: {
			{Title: "Material para decisores", Text: "Ofrece un resumen ejecutivo de una página para compartir con quien decide.", Score: 0.7},
		},
	}}
}

func (r *StaticRetriever) Retrieve(_ context.Context, cand Candidate) ([]Snippet, error) {
	return r.playbook[cand.Type], nil
}

// TemplateSuggester produces a deterministic suggestion per candidate type,
// used when no LLM suggester is configured.
type TemplateSuggester struct{}

var suggestionTemplates = map[string]string{
	CandidatePrice:     "Valida la preocupación por el precio y reencuadra hacia el valor: pregunta qué resultado justificaría la inversión.",
	CandidateTrust:     "Reconoce la duda, comparte un caso de éxito concreto y ofrece la garantía de devolución.",
	CandidateTiming:    "Acepta el momento, cuantifica el costo de esperar y propone una fecha concreta de seguimiento.",
	CandidateNeed:      "Haz una pregunta de diagnóstico sobre su proceso actual antes de argumentar.",
	CandidateAuthority: "Ofrece material ejecutivo para el decisor y agenda una llamada conjunta.",
}

func (TemplateSuggester) Suggest(_ context.Context, cand Candidate, _ []Snippet, _ []string) (string, error) {
	if s, ok := suggestionTemplates[cand.Type]; ok {
		return s, nil
	}
	return fmt.Sprintf("Explora la objeción de tipo %s con una pregunta abierta.", cand.Type), nil
}
