package registry

import (
	"testing"
	"time"

	"github.com/zen-systems/gauntlet/pkg/config"
)

func testEngineConfig() *config.EngineConfig {
	return &config.EngineConfig{
		Circuit: config.CircuitConfig{
			FailureThreshold:  2,
			RecoveryTimeoutMs: 10,
			SuccessThreshold:  1,
		},
		Providers: map[string]config.ProviderSpec{
			"alpha": {
				Adapter:              "anthropic",
				Model:                "claude-sonnet-4-5",
				Capabilities:         []string{"code", "creative"},
				CostPerUnit:          0.009,
				DeclaredAvgLatencyMs: 2000,
			},
			"beta": {
				Adapter:              "openai",
				Model:                "gpt-4o",
				Capabilities:         []string{"code"},
				CostPerUnit:          0.006,
				DeclaredAvgLatencyMs: 1800,
			},
			"gamma": {
				Adapter:              "google",
				Model:                "gemini-2.0-flash",
				Capabilities:         []string{"factual"},
				CostPerUnit:          0.004,
				DeclaredAvgLatencyMs: 1500,
				Disabled:             true,
			},
		},
	}
}

func TestEligibleFiltersByCapability(t *testing.T) {
	reg := NewRegistry(testEngineConfig())

	eligible := reg.Eligible("code")
	if len(eligible) != 2 {
		t.Fatalf("expected 2 code providers, got %d", len(eligible))
	}
	if eligible[0].ProviderID != "alpha" || eligible[1].ProviderID != "beta" {
		t.Fatalf("expected [alpha beta], got [%s %s]", eligible[0].ProviderID, eligible[1].ProviderID)
	}

	eligible = reg.Eligible("creative")
	if len(eligible) != 1 || eligible[0].ProviderID != "alpha" {
		t.Fatalf("expected only alpha for creative, got %d", len(eligible))
	}
}

func TestEligibleExcludesDisabled(t *testing.T) {
	reg := NewRegistry(testEngineConfig())

	eligible := reg.Eligible("factual")
	if len(eligible) != 0 {
		t.Fatalf("disabled provider should not be eligible, got %d", len(eligible))
	}

	if err := reg.SetDisabled("gamma", false); err != nil {
		t.Fatalf("SetDisabled: %v", err)
	}
	eligible = reg.Eligible("factual")
	if len(eligible) != 1 || eligible[0].ProviderID != "gamma" {
		t.Fatal("re-enabled provider should be eligible")
	}
}

func TestEligibleGeneralMatchesAll(t *testing.T) {
	reg := NewRegistry(testEngineConfig())

	eligible := reg.Eligible("general")
	if len(eligible) != 2 {
		t.Fatalf("general tasks should match all enabled providers, got %d", len(eligible))
	}
}

func TestEligibleExcludesOpenCircuit(t *testing.T) {
	reg := NewRegistry(testEngineConfig())

	reg.RecordOutcome("beta", false)
	reg.RecordOutcome("beta", false)
	if reg.BreakerState("beta") != BreakerOpen {
		t.Fatalf("expected open breaker, got %s", reg.BreakerState("beta"))
	}

	eligible := reg.Eligible("code")
	if len(eligible) != 1 || eligible[0].ProviderID != "alpha" {
		t.Fatalf("open circuit should exclude beta, got %d eligible", len(eligible))
	}

	// After the recovery window the breaker half-opens and the provider
	// becomes eligible again for a probe call.
	time.Sleep(20 * time.Millisecond)
	eligible = reg.Eligible("code")
	if len(eligible) != 2 {
		t.Fatalf("half-open provider should be eligible, got %d", len(eligible))
	}

	reg.RecordOutcome("beta", true)
	if reg.BreakerState("beta") != BreakerClosed {
		t.Fatalf("expected closed after half-open success, got %s", reg.BreakerState("beta"))
	}
}

func TestGetReturnsClone(t *testing.T) {
	reg := NewRegistry(testEngineConfig())

	profile, ok := reg.Get("alpha")
	if !ok {
		t.Fatal("expected alpha profile")
	}
	profile.WinRate = 0.99
	profile.Capabilities[0] = "mutated"

	fresh, _ := reg.Get("alpha")
	if fresh.WinRate != 0 {
		t.Fatal("mutating a returned profile should not affect the registry")
	}
	if fresh.Capabilities[0] != "code" {
		t.Fatal("capability slice should be deep copied")
	}
}

func TestUpdateStampsLastUpdated(t *testing.T) {
	reg := NewRegistry(testEngineConfig())

	before := time.Now().UTC()
	err := reg.Update("alpha", func(p *Profile) {
		p.WinRate = 0.7
		p.SampleCount = 12
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	profile, _ := reg.Get("alpha")
	if profile.WinRate != 0.7 || profile.SampleCount != 12 {
		t.Fatalf("update not applied: win_rate=%v samples=%d", profile.WinRate, profile.SampleCount)
	}
	if profile.LastUpdated.Before(before) {
		t.Fatal("LastUpdated should be stamped by Update")
	}
}

func TestUpdateUnknownProvider(t *testing.T) {
	reg := NewRegistry(testEngineConfig())

	if err := reg.Update("missing", func(p *Profile) {}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestRestoreKeepsConfiguredStaticFields(t *testing.T) {
	reg := NewRegistry(testEngineConfig())

	reg.Restore([]*Profile{
		{
			ProviderID:  "alpha",
			Adapter:     "stale-adapter",
			Model:       "stale-model",
			CostPerUnit: 99,
			WinRate:     0.62,
			SampleCount: 40,
			Wins:        25,
			AvgCost:     0.004,
		},
	})

	profile, _ := reg.Get("alpha")
	if profile.WinRate != 0.62 || profile.SampleCount != 40 || profile.Wins != 25 {
		t.Fatalf("aggregates not restored: %+v", profile)
	}
	if profile.Adapter != "anthropic" || profile.Model != "claude-sonnet-4-5" {
		t.Fatal("static fields should keep configured values")
	}
	if profile.CostPerUnit != 0.009 {
		t.Fatalf("cost should keep configured value, got %v", profile.CostPerUnit)
	}
}

func TestRestoreUnknownProviderDisabled(t *testing.T) {
	reg := NewRegistry(testEngineConfig())

	reg.Restore([]*Profile{
		{ProviderID: "retired", WinRate: 0.5, SampleCount: 100},
	})

	profile, ok := reg.Get("retired")
	if !ok {
		t.Fatal("restored profile should be kept")
	}
	if !profile.Disabled {
		t.Fatal("provider absent from config should be restored disabled")
	}
	if len(reg.Eligible("general")) != 2 {
		t.Fatal("retired provider must not become eligible")
	}
}

func TestSnapshotSorted(t *testing.T) {
	reg := NewRegistry(testEngineConfig())

	snapshot := reg.Snapshot()
	if len(snapshot) != 3 {
		t.Fatalf("expected 3 profiles, got %d", len(snapshot))
	}
	for i := 1; i < len(snapshot); i++ {
		if snapshot[i-1].ProviderID > snapshot[i].ProviderID {
			t.Fatal("snapshot should be sorted by provider ID")
		}
	}
}
