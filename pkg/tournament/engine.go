package tournament

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zen-systems/gauntlet/pkg/adapter"
	"github.com/zen-systems/gauntlet/pkg/artifact"
	"github.com/zen-systems/gauntlet/pkg/classify"
	"github.com/zen-systems/gauntlet/pkg/config"
	"github.com/zen-systems/gauntlet/pkg/events"
	"github.com/zen-systems/gauntlet/pkg/judge"
	"github.com/zen-systems/gauntlet/pkg/registry"
	"github.com/zen-systems/gauntlet/pkg/selector"
	"github.com/zen-systems/gauntlet/pkg/stats"
	"github.com/zen-systems/gauntlet/pkg/verify"
)

// Repository is the persistence surface the engine needs. The store
// package provides durable and in-memory implementations.
type Repository interface {
	SaveProfile(ctx context.Context, profile *registry.Profile) error
	ListProfiles(ctx context.Context) ([]*registry.Profile, error)
	AppendRound(ctx context.Context, round *Round) error
	AppendVerification(ctx context.Context, record *verify.Record) error
	SaveExperiment(ctx context.Context, exp *stats.Experiment) error
}

// Engine wires classifier, selector, dispatcher, judge, and statistics
// into the two entry points: tournaments and verified generation.
type Engine struct {
	cfg        *config.EngineConfig
	registry   *registry.Registry
	classifier classify.Strategy
	selector   *selector.Selector
	dispatcher *Dispatcher
	judge      *judge.Judge
	updater    *stats.Updater
	emitter    *events.Emitter
	repo       Repository
	logger     *zap.Logger

	mu         sync.Mutex
	experiment *stats.Experiment
	variants   map[stats.Variant]*selector.Selector
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger, which also becomes the default logger of
// every component the engine constructs itself.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClassifier overrides the task classifier.
func WithClassifier(s classify.Strategy) EngineOption {
	return func(e *Engine) {
		if s != nil {
			e.classifier = s
		}
	}
}

// WithSelector overrides the provider selector.
func WithSelector(s *selector.Selector) EngineOption {
	return func(e *Engine) {
		if s != nil {
			e.selector = s
		}
	}
}

// WithJudge overrides the judge.
func WithJudge(j *judge.Judge) EngineOption {
	return func(e *Engine) {
		if j != nil {
			e.judge = j
		}
	}
}

// WithRepository sets the persistence backend. Without one the engine
// runs fully in memory and nothing survives the process.
func WithRepository(repo Repository) EngineOption {
	return func(e *Engine) {
		e.repo = repo
	}
}

// WithEmitter overrides the event emitter.
func WithEmitter(em *events.Emitter) EngineOption {
	return func(e *Engine) {
		if em != nil {
			e.emitter = em
		}
	}
}

// NewEngine creates an engine from the config and adapter set. Components
// not supplied as options are constructed with their defaults.
func NewEngine(cfg *config.EngineConfig, adapters map[string]adapter.Adapter, opts ...EngineOption) *Engine {
	e := &Engine{
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = registry.NewRegistry(cfg, registry.WithLogger(e.logger))
	}
	if e.classifier == nil {
		e.classifier = classify.NewClassifier(adapters, cfg, classify.WithLogger(e.logger))
	}
	if e.selector == nil {
		e.selector = selector.NewSelector(cfg, selector.WithLogger(e.logger))
	}
	if e.dispatcher == nil {
		e.dispatcher = NewDispatcher(cfg, adapters, WithDispatcherLogger(e.logger))
	}
	if e.judge == nil {
		e.judge = judge.NewJudge(judge.WithLogger(e.logger))
	}
	if e.emitter == nil {
		e.emitter = events.NewEmitter(events.WithLogger(e.logger))
	}
	e.updater = stats.NewUpdater(e.registry, cfg, stats.WithLogger(e.logger))
	return e
}

// Registry exposes the provider registry for inspection and admin
// operations.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Restore loads persisted profiles into the registry. Call once at
// startup, before the first round.
func (e *Engine) Restore(ctx context.Context) error {
	if e.repo == nil {
		return nil
	}
	profiles, err := e.repo.ListProfiles(ctx)
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}
	e.registry.Restore(profiles)
	e.logger.Info("profiles restored", zap.Int("count", len(profiles)))
	return nil
}

// SetExperiment installs an A/B experiment whose arms use different
// selectors. Tasks are assigned to an arm by their id; the configured
// default selector serves any arm without an entry. Pass a nil
// experiment to stop experimenting.
func (e *Engine) SetExperiment(exp *stats.Experiment, selectors map[stats.Variant]*selector.Selector) {
	e.mu.Lock()
	e.experiment = exp
	e.variants = selectors
	e.mu.Unlock()
}

// RunTournament executes one full round for a task: classify, select,
// dispatch, judge, and fold the outcome into provider statistics. The
// result is returned even when the round ends inconclusive or cancelled;
// the error then carries the reason.
func (e *Engine) RunTournament(ctx context.Context, task *Task) (*RoundResult, error) {
	if task == nil || strings.TrimSpace(task.Description) == "" {
		return nil, fmt.Errorf("task description is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, &CancellationRequestedError{Err: err}
	}

	cls, err := e.classifier.Classify(ctx, task.Description, task.Hints)
	if err != nil {
		return nil, fmt.Errorf("classify task: %w", err)
	}
	task = task.withType(cls.TaskType)

	required := e.requiredProviders(task)
	selection, variant, err := e.selectProviders(task)
	if err != nil {
		return nil, err
	}
	providers := e.applyCostCap(task, selection, required)

	round := e.dispatcher.Dispatch(ctx, task, providers)
	cancelled := ctx.Err() != nil

	e.feedBreakers(round)

	okCount := round.OKCount()
	if cancelled || okCount < required {
		round.Inconclusive = true
	}

	result := &RoundResult{
		Round:          round,
		TaskType:       task.Type,
		LowConfidence:  cls.LowConfidence,
		ExploredSlot:   selection.ExploredProvider,
		SelectionNotes: selection.Reasons,
	}
	for _, p := range providers {
		c := round.Candidate(p.ProviderID)
		if c == nil {
			continue
		}
		result.TotalCost += c.Cost
		result.TotalUsage = addUsage(result.TotalUsage, c.Usage)
		result.Reports = append(result.Reports, adapter.CallReport{
			Adapter:        p.Adapter,
			Model:          c.Model,
			Usage:          c.Usage,
			Cost:           adapter.Cost{Currency: "USD", Amount: c.Cost, IsEstimate: true},
			Retries:        c.Retries,
			DurationMillis: c.LatencyMs,
			Error:          c.ErrorDetail,
		})
	}

	if !round.Inconclusive {
		e.scoreRound(ctx, task, round, result, required)
	}

	if !round.Inconclusive {
		if err := e.updater.ApplyOutcomes(e.outcomesFrom(round)); err != nil {
			e.logger.Warn("apply outcomes failed", zap.Error(err))
		}
		e.persistProfiles(ctx, round)
	}
	if !cancelled {
		e.recordExperiment(ctx, variant, !round.Inconclusive)
	}

	if err := e.persistRound(ctx, round); err != nil {
		return result, err
	}
	e.emitRound(round, result)

	e.logger.Info("round complete",
		zap.String("round_id", round.ID),
		zap.String("task_id", task.ID),
		zap.String("task_type", task.Type),
		zap.String("winner", round.WinnerProviderID),
		zap.Bool("inconclusive", round.Inconclusive),
		zap.Float64("total_cost", result.TotalCost))

	if cancelled {
		return result, &CancellationRequestedError{Err: ctx.Err()}
	}
	if round.Inconclusive {
		return result, &InconclusiveRoundError{RoundID: round.ID, OKCount: okCount, Required: required}
	}
	return result, nil
}

// RunVerifiedGeneration drives one task through the verification gate
// using this engine's providers: the generator drafts, the verifier
// rules, and the generator's profile absorbs the outcome.
func (e *Engine) RunVerifiedGeneration(ctx context.Context, task *Task, generatorID, verifierID string) (*verify.Record, error) {
	if task == nil || strings.TrimSpace(task.Description) == "" {
		return nil, fmt.Errorf("task description is required")
	}
	if _, ok := e.registry.Get(generatorID); !ok {
		return nil, fmt.Errorf("generator provider %s not found", generatorID)
	}
	if _, ok := e.registry.Get(verifierID); !ok {
		return nil, fmt.Errorf("verifier provider %s not found", verifierID)
	}

	taskType := task.Type
	if taskType == "" {
		if cls, err := e.classifier.Classify(ctx, task.Description, task.Hints); err == nil {
			taskType = cls.TaskType
		}
	}

	retryMax := 2
	if e.cfg != nil {
		retryMax = e.cfg.RetryCountMax
	}
	gate := verify.NewGate(e, verify.WithLogger(e.logger), verify.WithRetryMax(retryMax))

	rec, runErr := gate.Run(ctx, verify.Request{
		TaskID:      task.ID,
		TaskType:    taskType,
		Description: task.Description,
		GeneratorID: generatorID,
		VerifierID:  verifierID,
	})

	cancelled := ctx.Err() != nil
	if rec != nil {
		if err := e.persistVerification(ctx, rec); err != nil && runErr == nil {
			runErr = err
		}
		e.emitVerification(rec)
		if !cancelled {
			e.applyVerificationStats(ctx, rec, generatorID)
		}
	}

	if cancelled {
		return rec, &CancellationRequestedError{Err: ctx.Err()}
	}
	return rec, runErr
}

// Call satisfies the verification gate's Caller contract: one provider
// call through the dispatcher's retry, timeout, and pricing path.
func (e *Engine) Call(ctx context.Context, providerID, prompt string) (*verify.CallResult, error) {
	profile, ok := e.registry.Get(providerID)
	if !ok {
		return nil, fmt.Errorf("provider %s not found", providerID)
	}

	task := &Task{ID: uuid.NewString(), Description: prompt}
	candidate := e.dispatcher.callProvider(ctx, task, profile, e.dispatcher.callTimeout(task))

	if candidate.Status == StatusOK {
		e.registry.RecordOutcome(providerID, true)
		return &verify.CallResult{
			Artifact:  artifact.New(candidate.Content, providerID, candidate.Model, prompt),
			Usage:     candidate.Usage,
			Cost:      adapter.Cost{Currency: "USD", Amount: candidate.Cost, IsEstimate: true},
			LatencyMs: candidate.LatencyMs,
		}, nil
	}

	if !candidate.Cancelled {
		e.registry.RecordOutcome(providerID, false)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("provider %s call failed: %s", providerID, candidate.ErrorDetail)
}

// EstimateCost prices a usage against a provider's configured rates.
func (e *Engine) EstimateCost(providerID string, usage adapter.Usage) adapter.Cost {
	profile, ok := e.registry.Get(providerID)
	if !ok {
		return adapter.Cost{Currency: "USD"}
	}
	return costForCall(e.dispatcher.pricing, profile, usage)
}

// selectProviders picks the round's providers, routing through the
// experiment arm's selector when one is installed.
func (e *Engine) selectProviders(task *Task) (*selector.Selection, stats.Variant, error) {
	sel := e.selector
	var variant stats.Variant

	e.mu.Lock()
	if e.experiment != nil {
		variant = e.experiment.Assign(task.ID)
		if vs, ok := e.variants[variant]; ok && vs != nil {
			sel = vs
		}
	}
	e.mu.Unlock()

	eligible := e.registry.Eligible(task.Type)
	selection, err := sel.Select(task.Type, eligible, task.Constraints.MinProviders)
	if err != nil {
		return nil, variant, err
	}
	return selection, variant, nil
}

// applyCostCap trims the selection to fit the task's cost ceiling, using
// each provider's blended per-1k rate as the per-call estimate. The
// round keeps at least the required minimum regardless.
func (e *Engine) applyCostCap(task *Task, selection *selector.Selection, required int) []*registry.Profile {
	providers := selection.Providers
	if task.Constraints.MaxCost <= 0 {
		return providers
	}

	total := 0.0
	for _, p := range providers {
		total += p.CostPerUnit
	}
	for len(providers) > required && total > task.Constraints.MaxCost {
		dropped := providers[len(providers)-1]
		providers = providers[:len(providers)-1]
		total -= dropped.CostPerUnit
		selection.Reasons = append(selection.Reasons,
			fmt.Sprintf("cost cap %.4f: dropped %s", task.Constraints.MaxCost, dropped.ProviderID))
	}
	return providers
}

// scoreRound judges every ok candidate and installs the ranking and
// winner. Candidates whose scoring fails are excluded; if that leaves
// fewer than required, the round flips to inconclusive.
func (e *Engine) scoreRound(ctx context.Context, task *Task, round *Round, result *RoundResult, required int) {
	jt := judge.Task{Type: task.Type, Description: task.Description}
	round.Scores = make(map[string]float64)

	entries := make([]judge.Entry, 0, len(round.Candidates))
	for _, c := range round.Candidates {
		if c.Status != StatusOK {
			continue
		}
		score, err := e.judge.Score(ctx, jt, artifact.New(c.Content, c.ProviderID, c.Model, task.Description))
		if err != nil {
			e.logger.Warn("scoring failed",
				zap.String("provider", c.ProviderID),
				zap.Error(err))
			continue
		}
		round.Scores[c.ProviderID] = score
		entries = append(entries, judge.Entry{
			ProviderID: c.ProviderID,
			Score:      score,
			Cost:       c.Cost,
			LatencyMs:  c.LatencyMs,
		})
	}

	if len(entries) < required {
		round.Inconclusive = true
		return
	}

	ranked := judge.Rank(entries)
	round.WinnerProviderID = ranked[0].ProviderID
	for _, entry := range ranked {
		result.Ranking = append(result.Ranking, RankedCandidate{
			ProviderID: entry.ProviderID,
			Score:      entry.Score,
			Cost:       entry.Cost,
			LatencyMs:  entry.LatencyMs,
		})
	}
}

// feedBreakers reports call outcomes to the circuit breakers. Timeouts
// caused by round cancellation carry no signal and are skipped.
func (e *Engine) feedBreakers(round *Round) {
	for _, c := range round.Candidates {
		switch {
		case c.Status == StatusOK:
			e.registry.RecordOutcome(c.ProviderID, true)
		case c.Cancelled:
		default:
			e.registry.RecordOutcome(c.ProviderID, false)
		}
	}
}

// outcomesFrom maps a finalized round's ok candidates to statistics
// outcomes. Unscored candidates carry no judgment and are skipped.
func (e *Engine) outcomesFrom(round *Round) []stats.Outcome {
	var outcomes []stats.Outcome
	for _, c := range round.Candidates {
		if c.Status != StatusOK {
			continue
		}
		if _, scored := round.Scores[c.ProviderID]; !scored {
			continue
		}
		outcomes = append(outcomes, stats.Outcome{
			ProviderID: c.ProviderID,
			Won:        c.ProviderID == round.WinnerProviderID,
			LatencyMs:  c.LatencyMs,
			Cost:       c.Cost,
		})
	}
	return outcomes
}

// applyVerificationStats folds a completed verification into the
// generator's profile: approval counts as a win, rejection and
// escalation as losses. The verifier draws no update; it was judging,
// not competing.
func (e *Engine) applyVerificationStats(ctx context.Context, rec *verify.Record, generatorID string) {
	switch rec.Decision {
	case verify.DecisionApproved, verify.DecisionRejected, verify.DecisionEscalated:
	default:
		return
	}
	if len(rec.Attempts) == 0 {
		return
	}

	var generatorCost float64
	var lastLatency int64
	for _, att := range rec.Attempts {
		generatorCost += att.GeneratorCost
		lastLatency = att.LatencyMs
	}
	outcome := stats.Outcome{
		ProviderID: generatorID,
		Won:        rec.Approved(),
		LatencyMs:  lastLatency,
		Cost:       generatorCost,
	}
	if err := e.updater.ApplyOutcomes([]stats.Outcome{outcome}); err != nil {
		e.logger.Warn("apply verification outcome failed", zap.Error(err))
		return
	}
	e.persistProfile(ctx, generatorID)
}

func (e *Engine) recordExperiment(ctx context.Context, variant stats.Variant, success bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.experiment == nil || variant == "" {
		return
	}
	e.experiment.Record(variant, success)
	if e.repo != nil {
		if err := e.repo.SaveExperiment(context.WithoutCancel(ctx), e.experiment); err != nil {
			e.logger.Warn("persist experiment failed", zap.Error(err))
		}
	}
}

// persistRound stores a round regardless of how it ended. Storage
// failures are fatal to the call; a round that cannot be recorded must
// not silently count.
func (e *Engine) persistRound(ctx context.Context, round *Round) error {
	if e.repo == nil {
		return nil
	}
	if err := e.repo.AppendRound(context.WithoutCancel(ctx), round); err != nil {
		return fmt.Errorf("persist round %s: %w", round.ID, err)
	}
	return nil
}

func (e *Engine) persistVerification(ctx context.Context, rec *verify.Record) error {
	if e.repo == nil {
		return nil
	}
	if err := e.repo.AppendVerification(context.WithoutCancel(ctx), rec); err != nil {
		return fmt.Errorf("persist verification for task %s: %w", rec.TaskID, err)
	}
	return nil
}

// persistProfiles saves the profiles touched by a round. Profile saves
// are best effort: aggregates re-derive from future rounds.
func (e *Engine) persistProfiles(ctx context.Context, round *Round) {
	if e.repo == nil {
		return
	}
	for _, c := range round.Candidates {
		if c.Status != StatusOK {
			continue
		}
		e.persistProfile(ctx, c.ProviderID)
	}
}

func (e *Engine) persistProfile(ctx context.Context, providerID string) {
	if e.repo == nil {
		return
	}
	profile, ok := e.registry.Get(providerID)
	if !ok {
		return
	}
	if err := e.repo.SaveProfile(context.WithoutCancel(ctx), profile); err != nil {
		e.logger.Warn("persist profile failed",
			zap.String("provider", providerID),
			zap.Error(err))
	}
}

func (e *Engine) emitRound(round *Round, result *RoundResult) {
	providers := make([]string, 0, len(round.Candidates))
	for _, c := range round.Candidates {
		providers = append(providers, c.ProviderID)
	}
	e.emitter.EmitRound(events.RoundEvent{
		RoundID:          round.ID,
		TaskID:           round.TaskID,
		TaskType:         round.TaskType,
		Providers:        providers,
		WinnerProviderID: round.WinnerProviderID,
		Scores:           round.Scores,
		Inconclusive:     round.Inconclusive,
		ExploredSlot:     result.ExploredSlot,
		TotalCost:        result.TotalCost,
		DurationMillis:   round.CompletedAt.Sub(round.StartedAt).Milliseconds(),
		CompletedAt:      round.CompletedAt,
	})
}

func (e *Engine) emitVerification(rec *verify.Record) {
	e.emitter.EmitVerification(events.VerificationEvent{
		TaskID:              rec.TaskID,
		GeneratorProviderID: rec.GeneratorProviderID,
		VerifierProviderID:  rec.VerifierProviderID,
		Decision:            string(rec.Decision),
		RetryCount:          rec.RetryCount,
		TotalCost:           rec.TotalCost,
		CostSavingsPct:      rec.CostSavingsPct,
		DurationMillis:      rec.CompletedAt.Sub(rec.StartedAt).Milliseconds(),
		CompletedAt:         rec.CompletedAt,
	})
}

func (e *Engine) requiredProviders(task *Task) int {
	if task.Constraints.MinProviders > 0 {
		return task.Constraints.MinProviders
	}
	if e.cfg != nil && e.cfg.MinProviders > 0 {
		return e.cfg.MinProviders
	}
	return 2
}
