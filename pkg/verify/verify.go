// Package verify implements the cheap-generate, expensive-verify gate: a
// low-cost generator drafts the output, a stronger verifier rules on it, and
// a bounded repair loop feeds verifier findings back to the generator. When
// the retries run out the verifier generates directly (escalation), so the
// caller always ends with usable output or a typed error.
package verify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/gauntlet/pkg/adapter"
	"github.com/zen-systems/gauntlet/pkg/artifact"
)

// State tracks a verification run through its lifecycle.
type State string

const (
	StatePending    State = "pending"
	StateGenerated  State = "generated"
	StateVerifying  State = "verifying"
	StateNeedsFixes State = "needs_fixes"
	StateApproved   State = "approved"
	StateRejected   State = "rejected"
	StateEscalated  State = "escalated"
)

// Decision is the verifier's ruling on a generated artifact.
type Decision string

const (
	DecisionApproved   Decision = "approved"
	DecisionRejected   Decision = "rejected"
	DecisionNeedsFixes Decision = "needs_fixes"
	DecisionEscalated  Decision = "escalated"
)

// CallResult is one provider call as the gate sees it.
type CallResult struct {
	Artifact  *artifact.Artifact
	Usage     adapter.Usage
	Cost      adapter.Cost
	LatencyMs int64
}

// Caller abstracts provider calls so the gate stays independent of the
// engine that usually backs it.
type Caller interface {
	Call(ctx context.Context, providerID, prompt string) (*CallResult, error)
	EstimateCost(providerID string, usage adapter.Usage) adapter.Cost
}

// Attempt records one generate-plus-verify cycle.
type Attempt struct {
	Index           int      `json:"index"`
	ArtifactVersion int      `json:"artifact_version"`
	ContentHash     string   `json:"content_hash"`
	GeneratorCost   float64  `json:"generator_cost"`
	VerifierCost    float64  `json:"verifier_cost"`
	LatencyMs       int64    `json:"latency_ms"`
	Decision        Decision `json:"decision"`
	Feedback        []string `json:"feedback,omitempty"`
	Confidence      float64  `json:"confidence"`
}

// Record is the durable trace of one verification run. It is always
// returned, even on failure paths, so callers can persist interrupted runs.
type Record struct {
	TaskID              string    `json:"task_id"`
	TaskType            string    `json:"task_type,omitempty"`
	GeneratorProviderID string    `json:"generator_provider_id"`
	VerifierProviderID  string    `json:"verifier_provider_id"`
	State               State     `json:"state"`
	Decision            Decision  `json:"decision,omitempty"`
	Feedback            []string  `json:"feedback,omitempty"`
	RetryCount          int       `json:"retry_count"`
	TotalCost           float64   `json:"total_cost"`
	BaselineCost        float64   `json:"baseline_cost"`
	CostSavingsPct      float64   `json:"cost_savings_pct"`
	FinalContent        string    `json:"final_content,omitempty"`
	FinalContentHash    string    `json:"final_content_hash,omitempty"`
	Attempts            []Attempt `json:"attempts"`
	StartedAt           time.Time `json:"started_at"`
	CompletedAt         time.Time `json:"completed_at"`
}

// Approved reports whether the cheap path was accepted.
func (r *Record) Approved() bool {
	return r.Decision == DecisionApproved
}

// Request names the task and the provider pair for one verification run.
type Request struct {
	TaskID      string
	TaskType    string
	Description string
	GeneratorID string
	VerifierID  string
}

// VerificationExhaustedError reports that the repair loop used every retry
// and the escalation fallback could not produce output either.
type VerificationExhaustedError struct {
	TaskID       string
	Retries      int
	LastFeedback []string
	Err          error
}

func (e *VerificationExhaustedError) Error() string {
	return fmt.Sprintf("verification exhausted after %d retries for task %s: %v", e.Retries, e.TaskID, e.Err)
}

func (e *VerificationExhaustedError) Unwrap() error {
	return e.Err
}

// Gate drives tasks through generate, verify, and bounded repair.
type Gate struct {
	caller   Caller
	retryMax int
	logger   *zap.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the logger for the gate.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithRetryMax bounds how many repair rounds follow the initial generation.
func WithRetryMax(n int) Option {
	return func(g *Gate) {
		if n >= 0 {
			g.retryMax = n
		}
	}
}

// NewGate creates a Gate around the given caller.
func NewGate(caller Caller, opts ...Option) *Gate {
	g := &Gate{
		caller:   caller,
		retryMax: 2,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Run executes one verification run. The returned record is non-nil on every
// path; the error reports cancellation or an exhausted escalation.
func (g *Gate) Run(ctx context.Context, req Request) (*Record, error) {
	rec := &Record{
		TaskID:              req.TaskID,
		TaskType:            req.TaskType,
		GeneratorProviderID: req.GeneratorID,
		VerifierProviderID:  req.VerifierID,
		State:               StatePending,
		StartedAt:           time.Now().UTC(),
	}

	var current *artifact.Artifact
	var lastUsage adapter.Usage
	prompt := req.Description

	for attempt := 0; attempt <= g.retryMax; attempt++ {
		if err := ctx.Err(); err != nil {
			return interrupted(rec, err)
		}

		gen, err := g.caller.Call(ctx, req.GeneratorID, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return interrupted(rec, ctx.Err())
			}
			g.logger.Warn("generator call failed",
				zap.String("task_id", req.TaskID),
				zap.String("provider_id", req.GeneratorID),
				zap.Error(err))
			return g.escalate(ctx, rec, req)
		}
		if current == nil {
			current = gen.Artifact
		} else {
			current = current.NewVersion(gen.Artifact.Content)
		}
		lastUsage = gen.Usage
		rec.TotalCost += gen.Cost.Amount
		rec.State = StateGenerated

		rec.State = StateVerifying
		v, verifierCost, verifierLatency, err := g.verdictFor(ctx, req, current)
		rec.TotalCost += verifierCost
		if err != nil {
			if ctx.Err() != nil {
				return interrupted(rec, ctx.Err())
			}
			g.logger.Warn("verifier call failed",
				zap.String("task_id", req.TaskID),
				zap.String("provider_id", req.VerifierID),
				zap.Error(err))
			return g.escalate(ctx, rec, req)
		}

		rec.Attempts = append(rec.Attempts, Attempt{
			Index:           attempt,
			ArtifactVersion: current.Version,
			ContentHash:     current.Hash,
			GeneratorCost:   gen.Cost.Amount,
			VerifierCost:    verifierCost,
			LatencyMs:       gen.LatencyMs + verifierLatency,
			Decision:        v.Decision,
			Feedback:        v.Feedback,
			Confidence:      v.Confidence,
		})
		rec.Feedback = v.Feedback
		rec.RetryCount = attempt

		g.logger.Debug("verification attempt",
			zap.String("task_id", req.TaskID),
			zap.Int("attempt", attempt),
			zap.String("decision", string(v.Decision)),
			zap.Float64("confidence", v.Confidence))

		if v.Decision == DecisionApproved || v.Decision == DecisionRejected {
			state := StateApproved
			if v.Decision == DecisionRejected {
				state = StateRejected
			}
			return g.finalize(rec, req, current, state, v.Decision, lastUsage)
		}

		rec.State = StateNeedsFixes
		prompt = BuildRepairPrompt(current, v.Feedback)
	}

	return g.escalate(ctx, rec, req)
}

// verdictFor asks the verifier to rule on the current artifact. An
// unparseable response counts as needs_fixes so unverified content is never
// approved.
func (g *Gate) verdictFor(ctx context.Context, req Request, current *artifact.Artifact) (*verdict, float64, int64, error) {
	result, err := g.caller.Call(ctx, req.VerifierID, BuildVerifierPrompt(req.Description, current.Content))
	if err != nil {
		return nil, 0, 0, err
	}
	v, err := parseVerdict(result.Artifact.Content)
	if err != nil {
		g.logger.Warn("verifier verdict unparseable",
			zap.String("task_id", req.TaskID),
			zap.Error(err))
		v = &verdict{
			Decision: DecisionNeedsFixes,
			Feedback: []string{"verification inconclusive; provide a revised response"},
		}
	}
	return v, result.Cost.Amount, result.LatencyMs, nil
}

func (g *Gate) finalize(rec *Record, req Request, final *artifact.Artifact, state State, decision Decision, usage adapter.Usage) (*Record, error) {
	rec.State = state
	rec.Decision = decision
	rec.FinalContent = final.Content
	rec.FinalContentHash = final.Hash
	rec.BaselineCost = g.caller.EstimateCost(req.VerifierID, usage).Amount
	applySavings(rec)
	rec.CompletedAt = time.Now().UTC()

	g.logger.Info("verification complete",
		zap.String("task_id", req.TaskID),
		zap.String("decision", string(decision)),
		zap.Int("retry_count", rec.RetryCount),
		zap.Float64("total_cost", rec.TotalCost),
		zap.Float64("cost_savings_pct", rec.CostSavingsPct))
	return rec, nil
}

// escalate hands the task to the verifier for direct generation after the
// cheap path ran out of retries or failed outright.
func (g *Gate) escalate(ctx context.Context, rec *Record, req Request) (*Record, error) {
	rec.State = StateEscalated
	rec.Decision = DecisionEscalated
	if err := ctx.Err(); err != nil {
		return interrupted(rec, err)
	}

	result, err := g.caller.Call(ctx, req.VerifierID, req.Description)
	if err != nil {
		if ctx.Err() != nil {
			return interrupted(rec, ctx.Err())
		}
		rec.CompletedAt = time.Now().UTC()
		return rec, &VerificationExhaustedError{
			TaskID:       req.TaskID,
			Retries:      rec.RetryCount,
			LastFeedback: rec.Feedback,
			Err:          err,
		}
	}

	rec.TotalCost += result.Cost.Amount
	rec.FinalContent = result.Artifact.Content
	rec.FinalContentHash = result.Artifact.Hash
	rec.BaselineCost = result.Cost.Amount
	applySavings(rec)
	rec.CompletedAt = time.Now().UTC()

	g.logger.Info("verification escalated",
		zap.String("task_id", req.TaskID),
		zap.Int("retry_count", rec.RetryCount),
		zap.Float64("total_cost", rec.TotalCost),
		zap.Float64("cost_savings_pct", rec.CostSavingsPct))
	return rec, nil
}

func applySavings(rec *Record) {
	if rec.BaselineCost > 0 {
		rec.CostSavingsPct = (rec.BaselineCost - rec.TotalCost) / rec.BaselineCost
	}
}

func interrupted(rec *Record, cause error) (*Record, error) {
	rec.CompletedAt = time.Now().UTC()
	return rec, fmt.Errorf("verification interrupted: %w", cause)
}
