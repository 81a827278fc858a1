package selector

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/gauntlet/pkg/config"
	"github.com/zen-systems/gauntlet/pkg/registry"
)

// explorationC is the UCB exploration constant.
var explorationC = math.Sqrt(2)

// InsufficientProvidersError means fewer providers were eligible than the
// round's minimum. Callers decide whether to relax constraints or fail
// the task.
type InsufficientProvidersError struct {
	TaskType string
	Eligible int
	Required int
}

func (e *InsufficientProvidersError) Error() string {
	return fmt.Sprintf("insufficient providers for task type %q: %d eligible, %d required",
		e.TaskType, e.Eligible, e.Required)
}

// Selection is the outcome of one provider-selection pass.
type Selection struct {
	Providers []*registry.Profile
	// Explored is set when the stochastic exploration slot fired and
	// replaced the lowest-weight pick.
	Explored         bool
	ExploredProvider string
	Reasons          []string
}

// Selector ranks eligible providers with a bandit-style weight and picks
// the top k, occasionally giving one slot to an unselected provider so
// low-sample providers keep receiving traffic.
type Selector struct {
	epsilon          float64
	defaultProviders int
	minProviders     int
	logger           *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Selector.
type Option func(*Selector)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Selector) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSeed fixes the exploration RNG seed. Selection is then fully
// deterministic for a given registry snapshot.
func WithSeed(seed int64) Option {
	return func(s *Selector) {
		s.rng = rand.New(rand.NewSource(seed))
	}
}

// NewSelector creates a selector from the engine config.
func NewSelector(cfg *config.EngineConfig, opts ...Option) *Selector {
	s := &Selector{
		epsilon:          0.1,
		defaultProviders: 3,
		minProviders:     2,
		logger:           zap.NewNop(),
		rng:              rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if cfg != nil {
		s.epsilon = cfg.Epsilon
		if cfg.DefaultProviders > 0 {
			s.defaultProviders = cfg.DefaultProviders
		}
		if cfg.MinProviders > 0 {
			s.minProviders = cfg.MinProviders
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select picks providers for a round from the eligible set. minProviders
// overrides the configured minimum when positive (task constraints).
//
// The pick count is max(minimum, configured default), capped at the
// eligible count. Weights follow the UCB shape: win rate plus an
// exploration bonus that shrinks as a provider accumulates samples.
// Never-sampled providers get the maximum bonus so they are tried early.
func (s *Selector) Select(taskType string, eligible []*registry.Profile, minProviders int) (*Selection, error) {
	required := s.minProviders
	if minProviders > 0 {
		required = minProviders
	}
	if len(eligible) < required {
		return nil, &InsufficientProvidersError{
			TaskType: taskType,
			Eligible: len(eligible),
			Required: required,
		}
	}

	totalSamples := 0
	for _, p := range eligible {
		totalSamples += p.SampleCount
	}

	type weighted struct {
		profile *registry.Profile
		weight  float64
	}
	ranked := make([]weighted, 0, len(eligible))
	for _, p := range eligible {
		ranked = append(ranked, weighted{profile: p, weight: selectionWeight(p, totalSamples)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].weight != ranked[j].weight {
			return ranked[i].weight > ranked[j].weight
		}
		if ranked[i].profile.DeclaredAvgLatencyMs != ranked[j].profile.DeclaredAvgLatencyMs {
			return ranked[i].profile.DeclaredAvgLatencyMs < ranked[j].profile.DeclaredAvgLatencyMs
		}
		return ranked[i].profile.ProviderID < ranked[j].profile.ProviderID
	})

	k := s.defaultProviders
	if required > k {
		k = required
	}
	if k > len(ranked) {
		k = len(ranked)
	}

	sel := &Selection{Providers: make([]*registry.Profile, 0, k)}
	for i := 0; i < k; i++ {
		sel.Providers = append(sel.Providers, ranked[i].profile)
		sel.Reasons = append(sel.Reasons, fmt.Sprintf("%s: weight=%.3f win_rate=%.2f samples=%d",
			ranked[i].profile.ProviderID, ranked[i].weight, ranked[i].profile.WinRate, ranked[i].profile.SampleCount))
	}

	// Exploration slot: with probability epsilon, swap the lowest-weight
	// pick for a uniformly drawn unselected provider.
	if remainder := ranked[k:]; len(remainder) > 0 && s.epsilon > 0 {
		s.mu.Lock()
		roll := s.rng.Float64()
		var pick int
		if roll < s.epsilon {
			pick = s.rng.Intn(len(remainder))
		}
		s.mu.Unlock()
		if roll < s.epsilon {
			replaced := sel.Providers[k-1]
			explored := remainder[pick].profile
			sel.Providers[k-1] = explored
			sel.Explored = true
			sel.ExploredProvider = explored.ProviderID
			sel.Reasons = append(sel.Reasons, fmt.Sprintf("exploration slot: %s replaces %s",
				explored.ProviderID, replaced.ProviderID))
			s.logger.Debug("exploration slot fired",
				zap.String("explored", explored.ProviderID),
				zap.String("replaced", replaced.ProviderID))
		}
	}

	return sel, nil
}

// selectionWeight computes a provider's ranking weight from its win rate
// and sample count relative to the eligible pool.
func selectionWeight(p *registry.Profile, totalSamples int) float64 {
	if p.SampleCount == 0 {
		return p.WinRate + 2*explorationC
	}
	bonus := explorationC * math.Sqrt(math.Log(float64(totalSamples)+1)/float64(p.SampleCount+1))
	return p.WinRate + bonus
}
