// Package events flattens finalized rounds and verification runs into
// plain records, logs them, and fans them out to subscribers. Records
// hold only primitives so downstream consumers never depend on engine
// types.
package events

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// RoundEvent summarizes one finalized tournament round.
type RoundEvent struct {
	RoundID          string             `json:"round_id"`
	TaskID           string             `json:"task_id"`
	TaskType         string             `json:"task_type"`
	Providers        []string           `json:"providers"`
	WinnerProviderID string             `json:"winner_provider_id,omitempty"`
	Scores           map[string]float64 `json:"scores,omitempty"`
	Inconclusive     bool               `json:"inconclusive"`
	ExploredSlot     string             `json:"explored_slot,omitempty"`
	TotalCost        float64            `json:"total_cost"`
	DurationMillis   int64              `json:"duration_ms"`
	CompletedAt      time.Time          `json:"completed_at"`
}

// VerificationEvent summarizes one completed verification run.
type VerificationEvent struct {
	TaskID              string    `json:"task_id"`
	GeneratorProviderID string    `json:"generator_provider_id"`
	VerifierProviderID  string    `json:"verifier_provider_id"`
	Decision            string    `json:"decision"`
	RetryCount          int       `json:"retry_count"`
	TotalCost           float64   `json:"total_cost"`
	CostSavingsPct      float64   `json:"cost_savings_pct"`
	DurationMillis      int64     `json:"duration_ms"`
	CompletedAt         time.Time `json:"completed_at"`
}

// Subscriber receives every emitted event.
type Subscriber interface {
	OnRound(ev RoundEvent)
	OnVerification(ev VerificationEvent)
}

// Emitter logs events and fans them out to subscribers. Safe for
// concurrent use.
type Emitter struct {
	mu          sync.RWMutex
	subscribers []Subscriber
	logger      *zap.Logger
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithLogger sets the logger for emitted events.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Emitter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter(opts ...Option) *Emitter {
	e := &Emitter{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Subscribe registers a subscriber for all future events.
func (e *Emitter) Subscribe(s Subscriber) {
	if s == nil {
		return
	}
	e.mu.Lock()
	e.subscribers = append(e.subscribers, s)
	e.mu.Unlock()
}

// EmitRound publishes one round event.
func (e *Emitter) EmitRound(ev RoundEvent) {
	e.logger.Info("round finalized",
		zap.String("round_id", ev.RoundID),
		zap.String("task_id", ev.TaskID),
		zap.String("task_type", ev.TaskType),
		zap.Strings("providers", ev.Providers),
		zap.String("winner", ev.WinnerProviderID),
		zap.Bool("inconclusive", ev.Inconclusive),
		zap.Float64("total_cost", ev.TotalCost),
		zap.Int64("duration_ms", ev.DurationMillis))

	for _, s := range e.snapshot() {
		s.OnRound(ev)
	}
}

// EmitVerification publishes one verification event.
func (e *Emitter) EmitVerification(ev VerificationEvent) {
	e.logger.Info("verification finalized",
		zap.String("task_id", ev.TaskID),
		zap.String("generator", ev.GeneratorProviderID),
		zap.String("verifier", ev.VerifierProviderID),
		zap.String("decision", ev.Decision),
		zap.Int("retry_count", ev.RetryCount),
		zap.Float64("total_cost", ev.TotalCost),
		zap.Float64("cost_savings_pct", ev.CostSavingsPct),
		zap.Int64("duration_ms", ev.DurationMillis))

	for _, s := range e.snapshot() {
		s.OnVerification(ev)
	}
}

func (e *Emitter) snapshot() []Subscriber {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Subscriber, len(e.subscribers))
	copy(out, e.subscribers)
	return out
}
