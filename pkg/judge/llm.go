package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zen-systems/gauntlet/pkg/adapter"
	"github.com/zen-systems/gauntlet/pkg/artifact"
)

// LLMScorer drives an adapter with a strict-JSON rubric prompt. On a
// failed call or unparseable response it falls back to the wrapped
// deterministic scorer when one is set.
type LLMScorer struct {
	adapter  adapter.Adapter
	model    string
	fallback Scorer
}

// NewLLMScorer creates an adapter-backed scorer. fallback may be nil, in
// which case failures surface as errors.
func NewLLMScorer(a adapter.Adapter, model string, fallback Scorer) *LLMScorer {
	return &LLMScorer{adapter: a, model: model, fallback: fallback}
}

// Name returns the scorer identifier.
func (s *LLMScorer) Name() string { return "llm" }

// Score asks the adapter to rate the artifact and parses the JSON reply.
func (s *LLMScorer) Score(ctx context.Context, task Task, a *artifact.Artifact) (float64, error) {
	prompt := buildRubricPrompt(task, a.Content)
	resp, err := s.adapter.Generate(ctx, s.model, prompt)
	if err != nil {
		if s.fallback != nil {
			return s.fallback.Score(ctx, task, a)
		}
		return 0, fmt.Errorf("rubric call failed: %w", err)
	}
	score, err := parseRubricResponse(resp.Artifact.Content)
	if err != nil {
		if s.fallback != nil {
			return s.fallback.Score(ctx, task, a)
		}
		return 0, err
	}
	return score, nil
}

func buildRubricPrompt(task Task, content string) string {
	var sb strings.Builder

	sb.WriteString("You are judging one response to a task.\n\n")
	sb.WriteString("Task type: ")
	sb.WriteString(task.Type)
	sb.WriteString("\nTask: ")
	sb.WriteString(task.Description)
	sb.WriteString("\n\nResponse:\n---\n")
	sb.WriteString(content)
	sb.WriteString("\n---\n\n")
	sb.WriteString("Rate the response 0-100, weighing relevance 25%, quality 25%, completeness 20%, efficiency 15%, polish 15%.\n")
	sb.WriteString(`Respond with only JSON: {"score": <0-100>, "reasoning": "<one sentence>"}`)

	return sb.String()
}

type rubricResponse struct {
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

func parseRubricResponse(raw string) (float64, error) {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	var parsed rubricResponse
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return 0, fmt.Errorf("rubric response is not valid JSON: %w", err)
	}
	if parsed.Score < 0 || parsed.Score > 100 {
		return 0, fmt.Errorf("rubric score %v out of range", parsed.Score)
	}
	return parsed.Score / 100, nil
}
