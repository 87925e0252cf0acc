package pipeline

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// NewGenAIClient builds the Gemini client used by the LLM-backed
// classifier and suggester.
func NewGenAIClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return client, nil
}

// GenAIClassifier confirms objection candidates with a single yes/no model
// call.
type GenAIClassifier struct {
	Client *genai.Client
	Model  string
}

func (c *GenAIClassifier) Confirm(ctx context.Context, cand Candidate, recent []string) (bool, error) {
	prompt := fmt.Sprintf(
		"Eres un analista de llamadas de ventas. Contexto reciente:\n%s\n\n"+
			"¿El cliente está expresando una objeción de tipo %q? Responde únicamente SI o NO.",
		strings.Join(recent, "\n"), cand.Type,
	)
	resp, err := c.Client.Models.GenerateContent(ctx, c.Model, genai.Text(prompt), nil)
	if err != nil {
		return false, fmt.Errorf("classify objection: %w", err)
	}
	answer := strings.ToUpper(strings.TrimSpace(resp.Text()))
	return strings.HasPrefix(answer, "SI") || strings.HasPrefix(answer, "SÍ") || strings.HasPrefix(answer, "YES"), nil
}

// GenAISuggester generates a short coaching suggestion for the agent.
type GenAISuggester struct {
	Client *genai.Client
	Model  string
}

func (s *GenAISuggester) Suggest(ctx context.Context, cand Candidate, snippets []Snippet, recent []string) (string, error) {
	var kb strings.Builder
	for _, sn := range snippets {
		fmt.Fprintf(&kb, "- %s: %s\n", sn.Title, sn.Text)
	}
	prompt := fmt.Sprintf(
		"Eres un coach de ventas en vivo. El cliente expresó una objeción de tipo %q.\n"+
			"Contexto reciente:\n%s\n\nMaterial de apoyo:\n%s\n"+
			"Sugiere en una o dos frases qué debería responder el agente. Responde en español, sin preámbulos.",
		cand.Type, strings.Join(recent, "\n"), kb.String(),
	)
	resp, err := s.Client.Models.GenerateContent(ctx, s.Model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate suggestion: %w", err)
	}
	suggestion := strings.TrimSpace(resp.Text())
	if suggestion == "" {
		return "", fmt.Errorf("generate suggestion: empty response")
	}
	return suggestion, nil
}
