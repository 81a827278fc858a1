package stats

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Variant identifies one arm of an experiment.
type Variant string

const (
	VariantA Variant = "a"
	VariantB Variant = "b"
)

// VariantSamples accumulates outcomes for one arm. Append-only.
type VariantSamples struct {
	Trials    int `json:"trials"`
	Successes int `json:"successes"`
}

// Experiment runs two selection policies side by side. Tasks are
// assigned to an arm by a stable hash, so the same task always lands on
// the same arm regardless of process restarts.
type Experiment struct {
	ID        string                      `json:"id"`
	Name      string                      `json:"name"`
	VariantA  string                      `json:"variant_a"`
	VariantB  string                      `json:"variant_b"`
	SplitPct  int                         `json:"split_pct"`
	Samples   map[Variant]*VariantSamples `json:"samples"`
	CreatedAt time.Time                   `json:"created_at"`
}

// NewExperiment creates an experiment over two named policies with a
// 50/50 split.
func NewExperiment(name, policyA, policyB string) *Experiment {
	return &Experiment{
		ID:       uuid.NewString(),
		Name:     name,
		VariantA: policyA,
		VariantB: policyB,
		SplitPct: 50,
		Samples: map[Variant]*VariantSamples{
			VariantA: {},
			VariantB: {},
		},
		CreatedAt: time.Now().UTC(),
	}
}

// Assign maps a task to an arm. The assignment hashes the experiment ID
// together with the task ID, so different experiments split the same
// traffic independently.
func (e *Experiment) Assign(taskID string) Variant {
	h := sha256.Sum256([]byte(e.ID + ":" + taskID))
	bucket := binary.BigEndian.Uint64(h[:8]) % 100
	if int(bucket) < e.SplitPct {
		return VariantA
	}
	return VariantB
}

// PolicyFor returns the policy name behind an arm.
func (e *Experiment) PolicyFor(v Variant) string {
	if v == VariantA {
		return e.VariantA
	}
	return e.VariantB
}

// Record appends one outcome sample to an arm.
func (e *Experiment) Record(v Variant, success bool) {
	if e.Samples == nil {
		e.Samples = map[Variant]*VariantSamples{
			VariantA: {},
			VariantB: {},
		}
	}
	s, ok := e.Samples[v]
	if !ok {
		s = &VariantSamples{}
		e.Samples[v] = s
	}
	s.Trials++
	if success {
		s.Successes++
	}
}

// Report summarizes the experiment. Below minSamples per arm the report
// carries InsufficientData and makes no winner call.
type Report struct {
	ExperimentID     string  `json:"experiment_id"`
	Name             string  `json:"name"`
	RateA            float64 `json:"rate_a"`
	RateB            float64 `json:"rate_b"`
	Lift             float64 `json:"lift"`
	ZScore           float64 `json:"z_score"`
	PValue           float64 `json:"p_value"`
	Significant      bool    `json:"significant"`
	InsufficientData bool    `json:"insufficient_data"`
	Winner           string  `json:"winner,omitempty"`
	Recommendation   string  `json:"recommendation"`
}

// Report computes rates, the z statistic, and a recommendation at
// significance level 0.05.
func (e *Experiment) Report(minSamples int) *Report {
	rep := &Report{
		ExperimentID: e.ID,
		Name:         e.Name,
	}

	a := e.Samples[VariantA]
	b := e.Samples[VariantB]
	if a == nil {
		a = &VariantSamples{}
	}
	if b == nil {
		b = &VariantSamples{}
	}

	if a.Trials > 0 {
		rep.RateA = float64(a.Successes) / float64(a.Trials)
	}
	if b.Trials > 0 {
		rep.RateB = float64(b.Successes) / float64(b.Trials)
	}
	if rep.RateA > 0 {
		rep.Lift = (rep.RateB - rep.RateA) / rep.RateA
	}

	if a.Trials < minSamples || b.Trials < minSamples {
		rep.InsufficientData = true
		rep.Recommendation = fmt.Sprintf("insufficient data: need at least %d samples per variant (have %d/%d)",
			minSamples, a.Trials, b.Trials)
		return rep
	}

	rep.ZScore = TwoProportionZ(a.Successes, a.Trials, b.Successes, b.Trials)
	rep.PValue = TwoTailedP(rep.ZScore)
	rep.Significant = rep.PValue < 0.05

	if !rep.Significant {
		rep.Recommendation = "no significant difference; keep collecting samples"
		return rep
	}
	if rep.RateB > rep.RateA {
		rep.Winner = e.VariantB
	} else {
		rep.Winner = e.VariantA
	}
	rep.Recommendation = fmt.Sprintf("adopt %s (p=%.4f)", rep.Winner, rep.PValue)
	return rep
}
