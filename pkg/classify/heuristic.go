package classify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zen-systems/gauntlet/pkg/config"
)

// HeuristicDecision scores task types using trigger matches against the
// description and any caller hints.
func HeuristicDecision(description string, hints []string, cfg *config.EngineConfig) *Result {
	if cfg == nil {
		return &Result{TaskType: TypeGeneral, Confidence: 0}
	}

	text := strings.ToLower(description)
	if len(hints) > 0 {
		text = text + " " + strings.ToLower(strings.Join(hints, " "))
	}

	var candidates []Candidate
	for taskType, spec := range cfg.TaskTypes {
		var matched []string
		for _, trig := range spec.Triggers {
			trigger := strings.ToLower(trig)
			if containsTrigger(text, trigger) {
				matched = append(matched, trig)
			}
		}
		if len(matched) == 0 {
			continue
		}
		candidates = append(candidates, Candidate{
			TaskType: taskType,
			Score:    len(matched),
			Triggers: matched,
		})
	}

	if len(candidates) == 0 {
		return &Result{
			TaskType:   TypeGeneral,
			Confidence: 0,
			Reasons:    []string{"no triggers matched; using general"},
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score == candidates[j].Score {
			return candidates[i].TaskType < candidates[j].TaskType
		}
		return candidates[i].Score > candidates[j].Score
	})

	if len(candidates) > 3 {
		candidates = candidates[:3]
	}

	topScore := candidates[0].Score
	secondScore := 0
	if len(candidates) > 1 {
		secondScore = candidates[1].Score
	}

	margin := float64(topScore-secondScore) / float64(maxInt(topScore, 1))
	strength := float64(minInt(topScore, 5)) / 5.0
	confidence := 0.75*margin + 0.25*strength
	if topScore >= 2 && secondScore == 0 {
		confidence = maxFloat(confidence, 0.9)
	}
	if topScore >= 3 {
		confidence = minFloat(confidence+0.15, 1.0)
	}

	reasons := []string{fmt.Sprintf("top_score=%d second_score=%d", topScore, secondScore)}

	return &Result{
		TaskType:   candidates[0].TaskType,
		Confidence: confidence,
		Reasons:    reasons,
		Candidates: candidates,
	}
}

// containsTrigger checks if the text contains the trigger phrase.
// It looks for the trigger as a word or phrase boundary match.
func containsTrigger(text, trigger string) bool {
	idx := strings.Index(text, trigger)
	if idx == -1 {
		return false
	}

	// Check word boundary before trigger
	if idx > 0 {
		prev := text[idx-1]
		if isWordChar(prev) {
			return false
		}
	}

	// Check word boundary after trigger
	endIdx := idx + len(trigger)
	if endIdx < len(text) {
		next := text[endIdx]
		if isWordChar(next) {
			return false
		}
	}

	return true
}

func isWordChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
