package tournament

import (
	"math"
	"testing"

	"github.com/zen-systems/gauntlet/pkg/adapter"
	"github.com/zen-systems/gauntlet/pkg/config"
	"github.com/zen-systems/gauntlet/pkg/registry"
)

func TestEstimateCostFromPricingTable(t *testing.T) {
	pricing := config.PricingConfig{
		"anthropic": {
			"claude-sonnet-4-20250514": {PromptPer1K: 0.003, CompletionPer1K: 0.015},
			"default":                  {PromptPer1K: 0.005, CompletionPer1K: 0.020},
		},
	}

	usage := adapter.Usage{PromptTokens: 2000, CompletionTokens: 1000, TotalTokens: 3000}
	cost, ok := estimateCost(pricing, "anthropic", "claude-sonnet-4-20250514", usage)
	if !ok {
		t.Fatal("expected pricing hit")
	}
	want := 2.0*0.003 + 1.0*0.015
	if math.Abs(cost.Amount-want) > 1e-9 {
		t.Fatalf("cost = %v, want %v", cost.Amount, want)
	}
	if !cost.IsEstimate || cost.Currency != "USD" {
		t.Fatalf("unexpected cost metadata: %+v", cost)
	}

	cost, ok = estimateCost(pricing, "anthropic", "unknown-model", usage)
	if !ok {
		t.Fatal("default entry should apply to unknown models")
	}
	want = 2.0*0.005 + 1.0*0.020
	if math.Abs(cost.Amount-want) > 1e-9 {
		t.Fatalf("default cost = %v, want %v", cost.Amount, want)
	}

	if _, ok := estimateCost(pricing, "unknown-adapter", "m", usage); ok {
		t.Fatal("unknown adapter should miss")
	}
}

func TestCostForCallFallsBackToProfileRate(t *testing.T) {
	profile := &registry.Profile{
		ProviderID:  "cheap",
		Adapter:     "offbrand",
		Model:       "offbrand-1",
		CostPerUnit: 0.002,
	}
	usage := adapter.Usage{TotalTokens: 5000}

	cost := costForCall(nil, profile, usage)
	want := 5.0 * 0.002
	if math.Abs(cost.Amount-want) > 1e-9 {
		t.Fatalf("fallback cost = %v, want %v", cost.Amount, want)
	}
	if cost.PricingModel != "per_unit" {
		t.Fatalf("fallback should be marked per_unit, got %s", cost.PricingModel)
	}
}

func TestNormalizeUsage(t *testing.T) {
	got := normalizeUsage(&adapter.Usage{PromptTokens: 10, CompletionTokens: 5})
	if got.TotalTokens != 15 {
		t.Fatalf("total should be derived, got %d", got.TotalTokens)
	}

	if got := normalizeUsage(nil); got.TotalTokens != 0 {
		t.Fatalf("nil usage should normalize to zero, got %+v", got)
	}
}

func TestAddUsage(t *testing.T) {
	sum := addUsage(
		adapter.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		adapter.Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3},
	)
	if sum.PromptTokens != 11 || sum.CompletionTokens != 7 || sum.TotalTokens != 18 {
		t.Fatalf("unexpected sum: %+v", sum)
	}
}
