package tournament

import (
	"github.com/zen-systems/gauntlet/pkg/adapter"
	"github.com/zen-systems/gauntlet/pkg/config"
	"github.com/zen-systems/gauntlet/pkg/registry"
)

func normalizeUsage(u *adapter.Usage) adapter.Usage {
	if u == nil {
		return adapter.Usage{}
	}
	usage := *u
	if usage.TotalTokens == 0 && (usage.PromptTokens > 0 || usage.CompletionTokens > 0) {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return usage
}

func estimateCost(pricing config.PricingConfig, adapterName, model string, usage adapter.Usage) (adapter.Cost, bool) {
	entry, ok := pricingFor(pricing, adapterName, model)
	if !ok {
		return adapter.Cost{Currency: "USD"}, false
	}

	promptCost := (float64(usage.PromptTokens) / 1000.0) * entry.PromptPer1K
	completionCost := (float64(usage.CompletionTokens) / 1000.0) * entry.CompletionPer1K
	return adapter.Cost{
		Currency:     "USD",
		Amount:       promptCost + completionCost,
		IsEstimate:   true,
		PricingModel: "per_1k_tokens",
	}, true
}

func pricingFor(pricing config.PricingConfig, adapterName, model string) (config.ModelPricing, bool) {
	if pricing == nil {
		return config.ModelPricing{}, false
	}
	if adapterPricing, ok := pricing[adapterName]; ok {
		if entry, ok := adapterPricing[model]; ok {
			return entry, true
		}
		if entry, ok := adapterPricing["default"]; ok {
			return entry, true
		}
	}
	return config.ModelPricing{}, false
}

// costForCall prices a provider call. The pricing table wins; providers
// missing from it fall back to their profile's blended per-1k rate.
func costForCall(pricing config.PricingConfig, profile *registry.Profile, usage adapter.Usage) adapter.Cost {
	if cost, ok := estimateCost(pricing, profile.Adapter, profile.Model, usage); ok {
		return cost
	}
	return adapter.Cost{
		Currency:     "USD",
		Amount:       float64(usage.TotalTokens) / 1000.0 * profile.CostPerUnit,
		IsEstimate:   true,
		PricingModel: "per_unit",
	}
}

func addUsage(a adapter.Usage, b adapter.Usage) adapter.Usage {
	return adapter.Usage{
		PromptTokens:     a.PromptTokens + b.PromptTokens,
		CompletionTokens: a.CompletionTokens + b.CompletionTokens,
		TotalTokens:      a.TotalTokens + b.TotalTokens,
	}
}
