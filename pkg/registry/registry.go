package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/gauntlet/pkg/config"
)

// Registry holds provider profiles and their circuit breakers. Profiles
// are the only concurrently mutated shared state in the engine: all
// writes go through Update under the registry lock, so two rounds
// finishing at once can never interleave a partial aggregate update.
// Reads may be stale by at most one in-flight round's worth of updates.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	breakers map[string]*CircuitBreaker

	circuitCfg config.CircuitConfig
	logger     *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates a registry seeded from the engine config's
// provider table.
func NewRegistry(cfg *config.EngineConfig, opts ...Option) *Registry {
	r := &Registry{
		profiles: make(map[string]*Profile),
		breakers: make(map[string]*CircuitBreaker),
		logger:   zap.NewNop(),
	}
	if cfg != nil {
		r.circuitCfg = cfg.Circuit
		for id, spec := range cfg.Providers {
			r.profiles[id] = &Profile{
				ProviderID:           id,
				Adapter:              spec.Adapter,
				Model:                spec.Model,
				Capabilities:         append([]string(nil), spec.Capabilities...),
				CostPerUnit:          spec.CostPerUnit,
				DeclaredAvgLatencyMs: spec.DeclaredAvgLatencyMs,
				Disabled:             spec.Disabled,
			}
			r.breakers[id] = NewCircuitBreaker(cfg.Circuit)
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Restore overwrites profile aggregates with persisted values. Static
// fields (adapter, model, capabilities, cost) keep their configured
// values; only the learned statistics are restored.
func (r *Registry) Restore(profiles []*Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, saved := range profiles {
		if saved == nil {
			continue
		}
		current, ok := r.profiles[saved.ProviderID]
		if !ok {
			// Provider no longer configured; keep the record so its
			// history survives, but mark it disabled.
			restored := saved.Clone()
			restored.Disabled = true
			r.profiles[saved.ProviderID] = restored
			r.breakers[saved.ProviderID] = NewCircuitBreaker(r.circuitCfg)
			continue
		}
		current.WinRate = saved.WinRate
		current.SampleCount = saved.SampleCount
		current.AvgLatencyMs = saved.AvgLatencyMs
		current.AvgCost = saved.AvgCost
		current.Wins = saved.Wins
		current.LastUpdated = saved.LastUpdated
	}
}

// Get returns a copy of the profile for a provider.
func (r *Registry) Get(providerID string) (*Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, ok := r.profiles[providerID]
	if !ok {
		return nil, false
	}
	return profile.Clone(), true
}

// Snapshot returns copies of all profiles sorted by provider ID.
func (r *Registry) Snapshot() []*Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Profile, 0, len(r.profiles))
	for _, profile := range r.profiles {
		out = append(out, profile.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID < out[j].ProviderID })
	return out
}

// Eligible returns copies of the profiles that can serve a task type:
// capability match, not disabled, and circuit not open.
func (r *Registry) Eligible(taskType string) []*Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Profile
	for id, profile := range r.profiles {
		if profile.Disabled {
			continue
		}
		if !profile.HasCapability(taskType) {
			continue
		}
		if breaker, ok := r.breakers[id]; ok && !breaker.Allow() {
			r.logger.Debug("provider excluded by open circuit", zap.String("provider", id))
			continue
		}
		out = append(out, profile.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID < out[j].ProviderID })
	return out
}

// Update applies a mutation to one profile under the registry lock and
// stamps LastUpdated. It is the single write path for aggregates.
func (r *Registry) Update(providerID string, fn func(*Profile)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, ok := r.profiles[providerID]
	if !ok {
		return fmt.Errorf("provider %s not found", providerID)
	}
	fn(profile)
	profile.LastUpdated = time.Now().UTC()
	return nil
}

// SetDisabled flips the disabled flag for a provider.
func (r *Registry) SetDisabled(providerID string, disabled bool) error {
	return r.Update(providerID, func(p *Profile) {
		p.Disabled = disabled
	})
}

// RecordOutcome feeds a call outcome into the provider's circuit breaker.
// Timeouts from cancellation should not be reported here: they carry no
// signal about provider health.
func (r *Registry) RecordOutcome(providerID string, success bool) {
	r.mu.RLock()
	breaker, ok := r.breakers[providerID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	if success {
		breaker.RecordSuccess()
	} else {
		breaker.RecordFailure()
	}
}

// BreakerState returns the circuit state for a provider.
func (r *Registry) BreakerState(providerID string) BreakerState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	breaker, ok := r.breakers[providerID]
	if !ok {
		return BreakerClosed
	}
	return breaker.State()
}
