package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zen-systems/gauntlet/pkg/registry"
	"github.com/zen-systems/gauntlet/pkg/stats"
	"github.com/zen-systems/gauntlet/pkg/tournament"
	"github.com/zen-systems/gauntlet/pkg/verify"
)

// withStores runs one test body against both implementations so they
// stay interchangeable.
func withStores(t *testing.T, fn func(t *testing.T, s Repository)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemory())
	})
	t.Run("badger", func(t *testing.T) {
		s, err := OpenBadger(t.TempDir())
		if err != nil {
			t.Fatalf("open badger: %v", err)
		}
		t.Cleanup(func() {
			if err := s.Close(); err != nil {
				t.Errorf("close badger: %v", err)
			}
		})
		fn(t, s)
	})
}

func sampleProfile(id string) *registry.Profile {
	return &registry.Profile{
		ProviderID:           id,
		Adapter:              "anthropic",
		Model:                "claude-sonnet-4-5",
		Capabilities:         []string{"code", "creative"},
		CostPerUnit:          0.009,
		DeclaredAvgLatencyMs: 1800,
		WinRate:              0.62,
		SampleCount:          41,
		AvgLatencyMs:         1650.5,
		AvgCost:              0.0071,
		Wins:                 25,
		LastUpdated:          time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
	}
}

func sampleRound(taskID, roundID string, startedAt time.Time) *tournament.Round {
	return &tournament.Round{
		ID:       roundID,
		TaskID:   taskID,
		TaskType: "code",
		Candidates: []*tournament.Candidate{
			{ProviderID: "alpha", TaskID: taskID, Status: tournament.StatusOK, Content: "output", LatencyMs: 900, Cost: 0.004},
			{ProviderID: "beta", TaskID: taskID, Status: tournament.StatusTimeout},
		},
		Scores:           map[string]float64{"alpha": 0.8},
		WinnerProviderID: "alpha",
		StartedAt:        startedAt,
		CompletedAt:      startedAt.Add(2 * time.Second),
	}
}

func TestProfileRoundTrip(t *testing.T) {
	withStores(t, func(t *testing.T, s Repository) {
		ctx := context.Background()
		saved := sampleProfile("alpha")
		if err := s.SaveProfile(ctx, saved); err != nil {
			t.Fatalf("save profile: %v", err)
		}

		loaded, err := s.LoadProfile(ctx, "alpha")
		if err != nil {
			t.Fatalf("load profile: %v", err)
		}
		if loaded.ProviderID != saved.ProviderID ||
			loaded.Adapter != saved.Adapter ||
			loaded.Model != saved.Model ||
			loaded.CostPerUnit != saved.CostPerUnit ||
			loaded.DeclaredAvgLatencyMs != saved.DeclaredAvgLatencyMs ||
			loaded.WinRate != saved.WinRate ||
			loaded.SampleCount != saved.SampleCount ||
			loaded.AvgLatencyMs != saved.AvgLatencyMs ||
			loaded.AvgCost != saved.AvgCost ||
			loaded.Wins != saved.Wins ||
			loaded.Disabled != saved.Disabled {
			t.Fatalf("loaded profile differs: %+v vs %+v", loaded, saved)
		}
		if len(loaded.Capabilities) != 2 || loaded.Capabilities[0] != "code" {
			t.Fatalf("capabilities not preserved: %v", loaded.Capabilities)
		}
		if !loaded.LastUpdated.Equal(saved.LastUpdated) {
			t.Fatalf("last_updated not preserved: %v vs %v", loaded.LastUpdated, saved.LastUpdated)
		}
	})
}

func TestLoadProfileNotFound(t *testing.T) {
	withStores(t, func(t *testing.T, s Repository) {
		_, err := s.LoadProfile(context.Background(), "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestListProfilesSorted(t *testing.T) {
	withStores(t, func(t *testing.T, s Repository) {
		ctx := context.Background()
		for _, id := range []string{"gamma", "alpha", "beta"} {
			if err := s.SaveProfile(ctx, sampleProfile(id)); err != nil {
				t.Fatalf("save %s: %v", id, err)
			}
		}

		profiles, err := s.ListProfiles(ctx)
		if err != nil {
			t.Fatalf("list profiles: %v", err)
		}
		if len(profiles) != 3 {
			t.Fatalf("expected 3 profiles, got %d", len(profiles))
		}
		for i, want := range []string{"alpha", "beta", "gamma"} {
			if profiles[i].ProviderID != want {
				t.Fatalf("position %d: expected %s, got %s", i, want, profiles[i].ProviderID)
			}
		}
	})
}

func TestRoundsListedByTaskInStartOrder(t *testing.T) {
	withStores(t, func(t *testing.T, s Repository) {
		ctx := context.Background()
		base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

		// Append out of chronological order for task-1.
		if err := s.AppendRound(ctx, sampleRound("task-1", "round-b", base.Add(time.Minute))); err != nil {
			t.Fatalf("append round: %v", err)
		}
		if err := s.AppendRound(ctx, sampleRound("task-1", "round-a", base)); err != nil {
			t.Fatalf("append round: %v", err)
		}
		if err := s.AppendRound(ctx, sampleRound("task-2", "round-c", base)); err != nil {
			t.Fatalf("append round: %v", err)
		}

		rounds, err := s.ListRounds(ctx, "task-1")
		if err != nil {
			t.Fatalf("list rounds: %v", err)
		}
		if len(rounds) != 2 {
			t.Fatalf("expected 2 rounds for task-1, got %d", len(rounds))
		}
		if rounds[0].ID != "round-a" || rounds[1].ID != "round-b" {
			t.Fatalf("rounds out of start order: %s, %s", rounds[0].ID, rounds[1].ID)
		}
		if len(rounds[0].Candidates) != 2 {
			t.Fatalf("candidates not preserved: %d", len(rounds[0].Candidates))
		}
		if rounds[0].Candidates[1].Status != tournament.StatusTimeout {
			t.Fatalf("candidate status not preserved: %s", rounds[0].Candidates[1].Status)
		}

		other, err := s.ListRounds(ctx, "task-2")
		if err != nil {
			t.Fatalf("list rounds: %v", err)
		}
		if len(other) != 1 {
			t.Fatalf("expected 1 round for task-2, got %d", len(other))
		}

		empty, err := s.ListRounds(ctx, "task-3")
		if err != nil {
			t.Fatalf("list rounds: %v", err)
		}
		if len(empty) != 0 {
			t.Fatalf("expected no rounds for task-3, got %d", len(empty))
		}
	})
}

func TestVerificationsKeepAppendOrder(t *testing.T) {
	withStores(t, func(t *testing.T, s Repository) {
		ctx := context.Background()
		decisions := []verify.Decision{verify.DecisionNeedsFixes, verify.DecisionNeedsFixes, verify.DecisionApproved}
		for i, d := range decisions {
			rec := &verify.Record{
				TaskID:              "task-1",
				GeneratorProviderID: "cheap",
				VerifierProviderID:  "strong",
				State:               verify.State(d),
				Decision:            d,
				RetryCount:          i,
			}
			if err := s.AppendVerification(ctx, rec); err != nil {
				t.Fatalf("append verification %d: %v", i, err)
			}
		}
		if err := s.AppendVerification(ctx, &verify.Record{TaskID: "task-2", Decision: verify.DecisionApproved}); err != nil {
			t.Fatalf("append verification: %v", err)
		}

		records, err := s.ListVerifications(ctx, "task-1")
		if err != nil {
			t.Fatalf("list verifications: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("expected 3 records, got %d", len(records))
		}
		for i, d := range decisions {
			if records[i].Decision != d {
				t.Fatalf("position %d: expected %s, got %s", i, d, records[i].Decision)
			}
		}
	})
}

func TestExperimentRoundTrip(t *testing.T) {
	withStores(t, func(t *testing.T, s Repository) {
		ctx := context.Background()
		exp := stats.NewExperiment("decay-comparison", "decay-0.9", "decay-0.8")
		exp.Record(stats.VariantA, true)
		exp.Record(stats.VariantA, false)
		exp.Record(stats.VariantB, true)

		if err := s.SaveExperiment(ctx, exp); err != nil {
			t.Fatalf("save experiment: %v", err)
		}

		loaded, err := s.LoadExperiment(ctx, exp.ID)
		if err != nil {
			t.Fatalf("load experiment: %v", err)
		}
		if loaded.Name != "decay-comparison" || loaded.VariantA != "decay-0.9" {
			t.Fatalf("experiment fields not preserved: %+v", loaded)
		}
		a := loaded.Samples[stats.VariantA]
		if a == nil || a.Trials != 2 || a.Successes != 1 {
			t.Fatalf("variant a samples not preserved: %+v", a)
		}

		if _, err := s.LoadExperiment(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestBadgerPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := OpenBadger(dir)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	if err := s.SaveProfile(ctx, sampleProfile("alpha")); err != nil {
		t.Fatalf("save profile: %v", err)
	}
	if err := s.AppendRound(ctx, sampleRound("task-1", "round-a", time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC))); err != nil {
		t.Fatalf("append round: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close badger: %v", err)
	}

	reopened, err := OpenBadger(dir)
	if err != nil {
		t.Fatalf("reopen badger: %v", err)
	}
	defer reopened.Close()

	profile, err := reopened.LoadProfile(ctx, "alpha")
	if err != nil {
		t.Fatalf("load profile after reopen: %v", err)
	}
	if profile.WinRate != 0.62 || profile.SampleCount != 41 {
		t.Fatalf("learned stats lost across reopen: %+v", profile)
	}

	rounds, err := reopened.ListRounds(ctx, "task-1")
	if err != nil {
		t.Fatalf("list rounds after reopen: %v", err)
	}
	if len(rounds) != 1 || rounds[0].WinnerProviderID != "alpha" {
		t.Fatalf("round lost across reopen: %+v", rounds)
	}
}
