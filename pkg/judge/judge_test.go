package judge

import (
	"context"
	"math"
	"testing"

	"github.com/zen-systems/gauntlet/pkg/artifact"
)

func testArtifact(content string) *artifact.Artifact {
	return artifact.New(content, "test-provider", "test-model", "test prompt")
}

type fixedScorer struct {
	name  string
	score float64
}

func (s *fixedScorer) Name() string { return s.name }

func (s *fixedScorer) Score(_ context.Context, _ Task, _ *artifact.Artifact) (float64, error) {
	return s.score, nil
}

func TestScorerForKnownTypes(t *testing.T) {
	j := NewJudge()

	for taskType, want := range map[string]string{
		"code":          "code",
		"creative":      "creative",
		"factual":       "factual",
		"transactional": "transactional",
		"general":       "general",
	} {
		if got := j.ScorerFor(taskType).Name(); got != want {
			t.Fatalf("ScorerFor(%s) = %s, want %s", taskType, got, want)
		}
	}
}

func TestScorerForUnknownTypeFallsBack(t *testing.T) {
	j := NewJudge()

	if got := j.ScorerFor("haiku-battle").Name(); got != "general" {
		t.Fatalf("unknown type should fall back to general, got %s", got)
	}
}

func TestRegisterOverrides(t *testing.T) {
	j := NewJudge(WithScorer("code", &fixedScorer{name: "custom", score: 0.42}))

	score, err := j.Score(context.Background(), Task{Type: "code"}, testArtifact("anything"))
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if math.Abs(score-0.42) > 1e-9 {
		t.Fatalf("expected overridden scorer, got %v", score)
	}
}

func TestScoreRejectsOutOfRange(t *testing.T) {
	j := NewJudge(WithScorer("code", &fixedScorer{name: "broken", score: 1.5}))

	if _, err := j.Score(context.Background(), Task{Type: "code"}, testArtifact("x")); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestScoreIdempotent(t *testing.T) {
	j := NewJudge()
	task := Task{Type: "code", Description: "write a function that reverses a string"}
	a := testArtifact("```go\nfunc reverse(s string) string {\n\treturn s\n}\n```")

	first, err := j.Score(context.Background(), task, a)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	second, err := j.Score(context.Background(), task, a)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if first != second {
		t.Fatalf("scoring the same artifact twice gave %v then %v", first, second)
	}
}

func TestRankOrdersByScore(t *testing.T) {
	ranked := Rank([]Entry{
		{ProviderID: "c", Score: 0.5, Cost: 0.01, LatencyMs: 100},
		{ProviderID: "a", Score: 0.9, Cost: 0.05, LatencyMs: 900},
		{ProviderID: "b", Score: 0.7, Cost: 0.02, LatencyMs: 300},
	})

	want := []string{"a", "b", "c"}
	for i, id := range want {
		if ranked[i].ProviderID != id {
			t.Fatalf("rank %d: got %s, want %s", i, ranked[i].ProviderID, id)
		}
	}
}

func TestRankTieBreaksByCostThenLatency(t *testing.T) {
	ranked := Rank([]Entry{
		{ProviderID: "pricey", Score: 0.8, Cost: 0.05, LatencyMs: 100},
		{ProviderID: "cheap-slow", Score: 0.8, Cost: 0.01, LatencyMs: 900},
		{ProviderID: "cheap-fast", Score: 0.8, Cost: 0.01, LatencyMs: 200},
	})

	want := []string{"cheap-fast", "cheap-slow", "pricey"}
	for i, id := range want {
		if ranked[i].ProviderID != id {
			t.Fatalf("rank %d: got %s, want %s", i, ranked[i].ProviderID, id)
		}
	}
}

func TestRankDoesNotMutateInput(t *testing.T) {
	entries := []Entry{
		{ProviderID: "b", Score: 0.1},
		{ProviderID: "a", Score: 0.9},
	}
	Rank(entries)

	if entries[0].ProviderID != "b" {
		t.Fatal("Rank must not reorder its input slice")
	}
}
