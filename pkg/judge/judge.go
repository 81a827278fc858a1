package judge

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/zen-systems/gauntlet/pkg/artifact"
)

// Task describes the task a candidate answered, as scorers see it.
type Task struct {
	Type        string
	Description string
}

// Scorer assigns a quality score in [0,1] to a candidate artifact.
// Implementations must be pure functions of their inputs so that
// re-scoring a finalized round yields the same winner.
type Scorer interface {
	// Score evaluates the artifact against the task.
	Score(ctx context.Context, task Task, a *artifact.Artifact) (float64, error)

	// Name returns the scorer identifier.
	Name() string
}

// Judge maps task types to scoring strategies. Defaults are registered
// for every known type; callers can override any of them, including with
// an adapter-backed scorer.
type Judge struct {
	scorers  map[string]Scorer
	fallback Scorer
	logger   *zap.Logger
}

// Option configures a Judge.
type Option func(*Judge)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(j *Judge) {
		if logger != nil {
			j.logger = logger
		}
	}
}

// WithScorer overrides the scorer for one task type.
func WithScorer(taskType string, s Scorer) Option {
	return func(j *Judge) {
		j.Register(taskType, s)
	}
}

// NewJudge creates a judge with the default deterministic scorers.
func NewJudge(opts ...Option) *Judge {
	j := &Judge{
		scorers:  make(map[string]Scorer),
		fallback: &generalScorer{},
		logger:   zap.NewNop(),
	}

	j.Register("code", &codeScorer{})
	j.Register("creative", &creativeScorer{})
	j.Register("factual", &factualScorer{})
	j.Register("transactional", &transactionalScorer{})
	j.Register("general", &generalScorer{})

	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Register installs a scorer for a task type.
func (j *Judge) Register(taskType string, s Scorer) {
	if s == nil {
		return
	}
	j.scorers[taskType] = s
}

// ScorerFor returns the scorer registered for a task type, falling back
// to the general scorer for unknown types.
func (j *Judge) ScorerFor(taskType string) Scorer {
	if s, ok := j.scorers[taskType]; ok {
		return s
	}
	return j.fallback
}

// Score evaluates one artifact with the scorer for the task's type.
func (j *Judge) Score(ctx context.Context, task Task, a *artifact.Artifact) (float64, error) {
	scorer := j.ScorerFor(task.Type)
	score, err := scorer.Score(ctx, task, a)
	if err != nil {
		return 0, fmt.Errorf("scorer %s: %w", scorer.Name(), err)
	}
	if score < 0 || score > 1 {
		return 0, fmt.Errorf("scorer %s returned out-of-range score %v", scorer.Name(), score)
	}
	j.logger.Debug("scored candidate",
		zap.String("scorer", scorer.Name()),
		zap.String("task_type", task.Type),
		zap.Float64("score", score))
	return score, nil
}

// Entry is one scored candidate as the ranking sees it.
type Entry struct {
	ProviderID string
	Score      float64
	Cost       float64
	LatencyMs  int64
}

// Rank orders entries by score descending, breaking ties by lower cost,
// then lower latency, then provider ID for determinism. The input slice
// is not modified.
func Rank(entries []Entry) []Entry {
	ranked := make([]Entry, len(entries))
	copy(ranked, entries)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].Cost != ranked[j].Cost {
			return ranked[i].Cost < ranked[j].Cost
		}
		if ranked[i].LatencyMs != ranked[j].LatencyMs {
			return ranked[i].LatencyMs < ranked[j].LatencyMs
		}
		return ranked[i].ProviderID < ranked[j].ProviderID
	})
	return ranked
}
