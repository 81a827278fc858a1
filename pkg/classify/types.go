package classify

import "context"

// Task-type labels form a fixed closed set. Tasks that cannot be
// classified confidently fall back to TypeGeneral, which is eligible
// for every enabled provider.
const (
	TypeCode          = "code"
	TypeCreative      = "creative"
	TypeFactual       = "factual"
	TypeTransactional = "transactional"
	TypeGeneral       = "general"
)

// Candidate captures a heuristic candidate task type.
type Candidate struct {
	TaskType string   `json:"task_type"`
	Score    int      `json:"score"`
	Triggers []string `json:"triggers,omitempty"`
}

// Result captures classification details for one task description.
type Result struct {
	TaskType          string      `json:"task_type"`
	Confidence        float64     `json:"confidence"`
	Reasons           []string    `json:"reasons,omitempty"`
	Candidates        []Candidate `json:"candidates,omitempty"`
	UsedLLM           bool        `json:"used_llm"`
	LowConfidence     bool        `json:"low_confidence"`
	Cached            bool        `json:"cached"`
	ClassifierAdapter string      `json:"classifier_adapter,omitempty"`
	ClassifierModel   string      `json:"classifier_model,omitempty"`
}

// Strategy is the pluggable classification contract. Implementations
// must be pure functions of their input: no engine state is read or
// mutated during classification.
type Strategy interface {
	Classify(ctx context.Context, description string, hints []string) (*Result, error)
}
