package stats

import (
	"go.uber.org/zap"

	"github.com/zen-systems/gauntlet/pkg/config"
	"github.com/zen-systems/gauntlet/pkg/registry"
)

// Outcome is one provider's result from a finalized round or a completed
// verification, as the statistics fold consumes it. Only ok candidates
// produce outcomes; timeouts and inconclusive rounds contribute nothing.
type Outcome struct {
	ProviderID string
	Won        bool
	LatencyMs  int64
	Cost       float64
}

// Updater folds outcomes into provider aggregates with an exponential
// moving average. Each profile update runs through the registry's
// single-writer path, so concurrent rounds finishing at once cannot
// interleave a partial fold.
type Updater struct {
	registry *registry.Registry
	decay    float64
	logger   *zap.Logger
}

// UpdaterOption configures an Updater.
type UpdaterOption func(*Updater)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *zap.Logger) UpdaterOption {
	return func(u *Updater) {
		if logger != nil {
			u.logger = logger
		}
	}
}

// NewUpdater creates an updater bound to a registry.
func NewUpdater(reg *registry.Registry, cfg *config.EngineConfig, opts ...UpdaterOption) *Updater {
	u := &Updater{
		registry: reg,
		decay:    0.9,
		logger:   zap.NewNop(),
	}
	if cfg != nil && cfg.Decay > 0 && cfg.Decay < 1 {
		u.decay = cfg.Decay
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Decay returns the configured smoothing factor.
func (u *Updater) Decay() float64 {
	return u.decay
}

// ApplyOutcomes folds outcomes into the corresponding profiles. The
// first observation for a provider initializes the averages directly
// instead of decaying from zero.
func (u *Updater) ApplyOutcomes(outcomes []Outcome) error {
	for _, o := range outcomes {
		target := 0.0
		if o.Won {
			target = 1.0
		}
		err := u.registry.Update(o.ProviderID, func(p *registry.Profile) {
			if p.SampleCount == 0 {
				p.WinRate = target
				p.AvgLatencyMs = float64(o.LatencyMs)
				p.AvgCost = o.Cost
			} else {
				p.WinRate = u.decay*p.WinRate + (1-u.decay)*target
				p.AvgLatencyMs = u.decay*p.AvgLatencyMs + (1-u.decay)*float64(o.LatencyMs)
				p.AvgCost = u.decay*p.AvgCost + (1-u.decay)*o.Cost
			}
			p.SampleCount++
			if o.Won {
				p.Wins++
			}
		})
		if err != nil {
			return err
		}
		u.logger.Debug("applied outcome",
			zap.String("provider", o.ProviderID),
			zap.Bool("won", o.Won))
	}
	return nil
}
