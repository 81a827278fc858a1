package tournament

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/zen-systems/gauntlet/pkg/adapter"
	"github.com/zen-systems/gauntlet/pkg/config"
	"github.com/zen-systems/gauntlet/pkg/registry"
)

// Dispatcher fans a task out to the selected providers, one goroutine
// per call, bounded by a worker cap shared across rounds. Each call gets
// an independent timeout; the whole round gets a deadline of the call
// timeout times the configured multiplier.
type Dispatcher struct {
	adapters           map[string]adapter.Adapter
	pricing            config.PricingConfig
	retry              config.RetryConfig
	defaultCallTimeout time.Duration
	deadlineMultiplier float64
	workers            *semaphore.Weighted
	logger             *zap.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger used for debug output.
func WithDispatcherLogger(logger *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher creates a dispatcher from the engine config.
func NewDispatcher(cfg *config.EngineConfig, adapters map[string]adapter.Adapter, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		adapters:           adapters,
		retry:              config.RetryConfig{MaxRetries: 2, BaseBackoffMs: 200, MaxBackoffMs: 2000},
		defaultCallTimeout: 30 * time.Second,
		deadlineMultiplier: 1.5,
		workers:            semaphore.NewWeighted(8),
		logger:             zap.NewNop(),
	}
	if cfg != nil {
		d.pricing = cfg.Pricing
		if cfg.Retry.MaxRetries > 0 || cfg.Retry.BaseBackoffMs > 0 {
			d.retry = cfg.Retry
		}
		if cfg.CallTimeoutMs > 0 {
			d.defaultCallTimeout = time.Duration(cfg.CallTimeoutMs) * time.Millisecond
		}
		if cfg.RoundDeadlineMultiplier > 0 {
			d.deadlineMultiplier = cfg.RoundDeadlineMultiplier
		}
		if cfg.MaxParallelCalls > 0 {
			d.workers = semaphore.NewWeighted(cfg.MaxParallelCalls)
		}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs one generation call per provider concurrently and
// aggregates the outcomes into a round. Individual failures never abort
// the round; they become non-ok candidates. The round is returned once
// every call has resolved or the round deadline has elapsed, whichever
// comes first. Stragglers at the deadline are cancelled and recorded as
// timed out.
func (d *Dispatcher) Dispatch(ctx context.Context, task *Task, providers []*registry.Profile) *Round {
	round := &Round{
		ID:        uuid.NewString(),
		TaskID:    task.ID,
		TaskType:  task.Type,
		StartedAt: time.Now().UTC(),
	}

	callTimeout := d.callTimeout(task)
	roundCtx, cancel := context.WithTimeout(ctx, d.roundDeadline(callTimeout))
	defer cancel()

	results := make(chan *Candidate, len(providers))
	var wg sync.WaitGroup

	for _, profile := range providers {
		wg.Add(1)
		go func(p *registry.Profile) {
			defer wg.Done()
			results <- d.callProvider(roundCtx, task, p, callTimeout)
		}(profile)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for candidate := range results {
		round.Candidates = append(round.Candidates, candidate)
	}
	sort.Slice(round.Candidates, func(i, j int) bool {
		return round.Candidates[i].ProviderID < round.Candidates[j].ProviderID
	})

	round.CompletedAt = time.Now().UTC()
	return round
}

// callProvider runs one provider call through the worker cap and the
// transient-retry loop, and maps the outcome to a candidate.
func (d *Dispatcher) callProvider(roundCtx context.Context, task *Task, profile *registry.Profile, callTimeout time.Duration) *Candidate {
	base := Candidate{
		ProviderID: profile.ProviderID,
		TaskID:     task.ID,
		Model:      profile.Model,
	}
	started := time.Now()

	if err := d.workers.Acquire(roundCtx, 1); err != nil {
		return d.timeoutCandidate(roundCtx, base, started, 0, err)
	}
	defer d.workers.Release(1)

	impl, ok := d.adapters[profile.Adapter]
	if !ok {
		c := base
		c.Status = StatusError
		c.ErrorDetail = fmt.Sprintf("adapter %s not found", profile.Adapter)
		c.LatencyMs = time.Since(started).Milliseconds()
		return &c
	}

	callCtx, cancel := context.WithTimeout(roundCtx, callTimeout)
	defer cancel()

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= d.retry.MaxRetries; attempt++ {
		attempts = attempt
		resp, err := impl.Generate(callCtx, profile.Model, task.Description)
		if err == nil {
			usage := normalizeUsage(resp.Usage)
			cost := costForCall(d.pricing, profile, usage)
			c := base
			c.Content = resp.Artifact.Content
			c.ContentHash = resp.Artifact.Hash
			c.Usage = usage
			c.Cost = cost.Amount
			c.Status = StatusOK
			c.Retries = attempt
			c.LatencyMs = time.Since(started).Milliseconds()
			return &c
		}

		lastErr = err
		if callCtx.Err() != nil || adapter.IsTimeout(err) {
			return d.timeoutCandidate(roundCtx, base, started, attempt, err)
		}
		if !adapter.IsTransient(err) || attempt == d.retry.MaxRetries {
			break
		}

		backoff := computeBackoff(d.retry.BaseBackoffMs, d.retry.MaxBackoffMs, attempt)
		if err := sleepWithContext(callCtx, backoff); err != nil {
			return d.timeoutCandidate(roundCtx, base, started, attempt, err)
		}
	}

	c := base
	c.Status = StatusError
	c.Retries = attempts
	c.LatencyMs = time.Since(started).Milliseconds()
	if lastErr != nil {
		c.ErrorDetail = lastErr.Error()
	}
	d.logger.Debug("provider call failed",
		zap.String("provider", profile.ProviderID),
		zap.Int("retries", attempts),
		zap.String("error", c.ErrorDetail))
	return &c
}

// timeoutCandidate records a call that ran out of time. Cancelled marks
// deadlines imposed from outside the call (round deadline or caller
// cancellation) as opposed to the call's own budget.
func (d *Dispatcher) timeoutCandidate(roundCtx context.Context, base Candidate, started time.Time, attempt int, err error) *Candidate {
	c := base
	c.Status = StatusTimeout
	c.Cancelled = roundCtx.Err() != nil
	c.Retries = attempt
	c.LatencyMs = time.Since(started).Milliseconds()
	if err != nil {
		c.ErrorDetail = err.Error()
	}
	return &c
}

func (d *Dispatcher) callTimeout(task *Task) time.Duration {
	if task.Constraints.MaxLatency > 0 {
		return task.Constraints.MaxLatency
	}
	return d.defaultCallTimeout
}

func (d *Dispatcher) roundDeadline(callTimeout time.Duration) time.Duration {
	return time.Duration(float64(callTimeout) * d.deadlineMultiplier)
}

func computeBackoff(baseMs, maxMs, attempt int) time.Duration {
	backoff := time.Duration(baseMs) * time.Millisecond
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff >= time.Duration(maxMs)*time.Millisecond {
			return time.Duration(maxMs) * time.Millisecond
		}
	}
	if backoff > time.Duration(maxMs)*time.Millisecond {
		return time.Duration(maxMs) * time.Millisecond
	}
	return backoff
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
