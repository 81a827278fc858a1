package tournament

import (
	"time"

	"github.com/google/uuid"

	"github.com/zen-systems/gauntlet/pkg/adapter"
)

// Task is one unit of work submitted to the engine. Immutable once
// created; Type is set exactly once by the classifier.
type Task struct {
	ID          string      `json:"id"`
	Description string      `json:"description"`
	Type        string      `json:"type,omitempty"`
	Hints       []string    `json:"hints,omitempty"`
	Constraints Constraints `json:"constraints"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Constraints bound a task's execution. Zero values mean "use the
// configured defaults".
type Constraints struct {
	MaxCost      float64       `json:"max_cost,omitempty"`
	MaxLatency   time.Duration `json:"max_latency,omitempty"`
	MinProviders int           `json:"min_providers,omitempty"`
}

// NewTask creates a task with a fresh ID.
func NewTask(description string, hints []string, constraints Constraints) *Task {
	return &Task{
		ID:          uuid.NewString(),
		Description: description,
		Hints:       hints,
		Constraints: constraints,
		CreatedAt:   time.Now().UTC(),
	}
}

// withType returns a copy of the task with the classified type set.
func (t *Task) withType(taskType string) *Task {
	copied := *t
	copied.Type = taskType
	return &copied
}

// CandidateStatus is the terminal state of one dispatched call.
type CandidateStatus string

const (
	StatusOK      CandidateStatus = "ok"
	StatusTimeout CandidateStatus = "timeout"
	StatusError   CandidateStatus = "error"
)

// Candidate is one provider's response (or failure) within a round.
// Immutable after creation.
type Candidate struct {
	ProviderID  string          `json:"provider_id"`
	TaskID      string          `json:"task_id"`
	Model       string          `json:"model,omitempty"`
	Content     string          `json:"content,omitempty"`
	ContentHash string          `json:"content_hash,omitempty"`
	LatencyMs   int64           `json:"latency_ms"`
	Cost        float64         `json:"cost"`
	Usage       adapter.Usage   `json:"usage"`
	Status      CandidateStatus `json:"status"`
	ErrorDetail string          `json:"error_detail,omitempty"`
	Retries     int             `json:"retries"`
	// Cancelled marks a timeout caused by round cancellation or the
	// round deadline rather than the provider's own call budget. Such
	// timeouts draw no circuit-breaker penalty.
	Cancelled bool `json:"cancelled,omitempty"`
}

// Round is one complete tournament execution for a single task.
// Finalized exactly once; inconclusive rounds never have a winner.
type Round struct {
	ID               string             `json:"id"`
	TaskID           string             `json:"task_id"`
	TaskType         string             `json:"task_type"`
	Candidates       []*Candidate       `json:"candidates"`
	Scores           map[string]float64 `json:"scores,omitempty"`
	WinnerProviderID string             `json:"winner_provider_id,omitempty"`
	Inconclusive     bool               `json:"inconclusive"`
	StartedAt        time.Time          `json:"started_at"`
	CompletedAt      time.Time          `json:"completed_at"`
}

// OKCount returns the number of candidates that completed ok.
func (r *Round) OKCount() int {
	n := 0
	for _, c := range r.Candidates {
		if c.Status == StatusOK {
			n++
		}
	}
	return n
}

// Candidate returns the candidate for a provider, or nil.
func (r *Round) Candidate(providerID string) *Candidate {
	for _, c := range r.Candidates {
		if c.ProviderID == providerID {
			return c
		}
	}
	return nil
}

// RoundResult is what RunTournament hands back to the caller.
type RoundResult struct {
	Round          *Round               `json:"round"`
	Ranking        []RankedCandidate    `json:"ranking,omitempty"`
	Reports        []adapter.CallReport `json:"reports,omitempty"`
	TotalCost      float64              `json:"total_cost"`
	TotalUsage     adapter.Usage        `json:"total_usage"`
	TaskType       string               `json:"task_type"`
	LowConfidence  bool                 `json:"low_confidence,omitempty"`
	ExploredSlot   string               `json:"explored_slot,omitempty"`
	SelectionNotes []string             `json:"selection_notes,omitempty"`
}

// RankedCandidate is one entry in the final ranking.
type RankedCandidate struct {
	ProviderID string  `json:"provider_id"`
	Score      float64 `json:"score"`
	Cost       float64 `json:"cost"`
	LatencyMs  int64   `json:"latency_ms"`
}

// Winner returns the winning candidate, or nil for inconclusive rounds.
func (r *RoundResult) Winner() *Candidate {
	if r.Round == nil || r.Round.WinnerProviderID == "" {
		return nil
	}
	return r.Round.Candidate(r.Round.WinnerProviderID)
}
