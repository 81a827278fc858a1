package verify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zen-systems/gauntlet/pkg/artifact"
)

// BuildVerifierPrompt asks the verifier to rule on a candidate response.
func BuildVerifierPrompt(description, content string) string {
	var sb strings.Builder

	sb.WriteString("You are reviewing a candidate response to a task.\n\n")
	sb.WriteString("Task:\n")
	sb.WriteString(description)
	sb.WriteString("\n\nCandidate response:\n---\n")
	sb.WriteString(content)
	sb.WriteString("\n---\n\n")
	sb.WriteString("Decide whether the response fully and correctly completes the task.\n")
	sb.WriteString("Use \"needs_fixes\" for salvageable output and \"rejected\" only when a rewrite cannot help.\n")
	sb.WriteString(`Respond with only JSON: {"decision": "approved|rejected|needs_fixes", "feedback": ["<specific issue>"], "confidence": <0-1>}`)

	return sb.String()
}

// BuildRepairPrompt asks the generator to fix the issues the verifier found.
func BuildRepairPrompt(original *artifact.Artifact, feedback []string) string {
	var sb strings.Builder

	sb.WriteString("The following output failed verification:\n\n")
	sb.WriteString("---\n")
	sb.WriteString(original.Content)
	sb.WriteString("\n---\n\n")

	sb.WriteString("Issues found:\n")
	for _, item := range feedback {
		sb.WriteString(fmt.Sprintf("- %s\n", item))
	}

	sb.WriteString("\nPlease fix all issues and provide the corrected output.")

	return sb.String()
}

type verdict struct {
	Decision   Decision `json:"decision"`
	Feedback   []string `json:"feedback"`
	Confidence float64  `json:"confidence"`
}

func parseVerdict(raw string) (*verdict, error) {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	var v verdict
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return nil, fmt.Errorf("verdict is not valid JSON: %w", err)
	}
	switch v.Decision {
	case DecisionApproved, DecisionRejected, DecisionNeedsFixes:
	default:
		return nil, fmt.Errorf("unknown decision %q", v.Decision)
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return nil, fmt.Errorf("confidence %v out of range", v.Confidence)
	}
	return &v, nil
}
