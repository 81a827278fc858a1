package judge

import (
	"context"
	"strings"
	"unicode"

	"github.com/zen-systems/gauntlet/pkg/artifact"
)

// Composite criteria weights applied by every deterministic scorer.
const (
	weightRelevance    = 0.25
	weightQuality      = 0.25
	weightCompleteness = 0.20
	weightEfficiency   = 0.15
	weightPolish       = 0.15
)

// hollowMarkers flag content that claims work instead of doing it.
var hollowMarkers = []string{
	"todo",
	"fixme",
	"not implemented",
	"placeholder",
	"fill this in",
	"your code here",
	"lorem ipsum",
}

var hedgingPhrases = []string{
	"i think",
	"i believe",
	"maybe",
	"probably",
	"not sure",
	"might be",
	"it seems",
	"possibly",
}

var fillerPhrases = []string{
	"i'd be happy to",
	"certainly!",
	"of course!",
	"great question",
	"as an ai",
}

func composite(relevance, quality, completeness, efficiency, polish float64) float64 {
	return clamp01(weightRelevance*relevance +
		weightQuality*quality +
		weightCompleteness*completeness +
		weightEfficiency*efficiency +
		weightPolish*polish)
}

type codeScorer struct{}

func (s *codeScorer) Name() string { return "code" }

func (s *codeScorer) Score(_ context.Context, task Task, a *artifact.Artifact) (float64, error) {
	content := a.Content
	if strings.TrimSpace(content) == "" {
		return 0, nil
	}
	return composite(
		relevanceScore(task.Description, content),
		codeQuality(content),
		completenessScore(content, 80),
		efficiencyScore(content, 600),
		polishScore(content),
	), nil
}

type creativeScorer struct{}

func (s *creativeScorer) Name() string { return "creative" }

func (s *creativeScorer) Score(_ context.Context, task Task, a *artifact.Artifact) (float64, error) {
	content := a.Content
	if strings.TrimSpace(content) == "" {
		return 0, nil
	}
	return composite(
		relevanceScore(task.Description, content),
		lexicalDiversity(content),
		completenessScore(content, 150),
		efficiencyScore(content, 800),
		polishScore(content),
	), nil
}

type factualScorer struct{}

func (s *factualScorer) Name() string { return "factual" }

func (s *factualScorer) Score(_ context.Context, task Task, a *artifact.Artifact) (float64, error) {
	content := a.Content
	if strings.TrimSpace(content) == "" {
		return 0, nil
	}
	return composite(
		relevanceScore(task.Description, content),
		factualQuality(content),
		completenessScore(content, 100),
		efficiencyScore(content, 500),
		polishScore(content),
	), nil
}

type transactionalScorer struct{}

func (s *transactionalScorer) Name() string { return "transactional" }

func (s *transactionalScorer) Score(_ context.Context, task Task, a *artifact.Artifact) (float64, error) {
	content := a.Content
	if strings.TrimSpace(content) == "" {
		return 0, nil
	}
	return composite(
		relevanceScore(task.Description, content),
		transactionalQuality(content),
		completenessScore(content, 30),
		efficiencyScore(content, 120),
		polishScore(content),
	), nil
}

type generalScorer struct{}

func (s *generalScorer) Name() string { return "general" }

func (s *generalScorer) Score(_ context.Context, task Task, a *artifact.Artifact) (float64, error) {
	content := a.Content
	if strings.TrimSpace(content) == "" {
		return 0, nil
	}
	quality := clamp01((lexicalDiversity(content) + factualQuality(content)) / 2)
	return composite(
		relevanceScore(task.Description, content),
		quality,
		completenessScore(content, 80),
		efficiencyScore(content, 500),
		polishScore(content),
	), nil
}

// relevanceScore measures term overlap between the task description and
// the content. Neutral 0.5 when the description has no significant terms.
func relevanceScore(description, content string) float64 {
	terms := significantTerms(description)
	if len(terms) == 0 {
		return 0.5
	}
	lowered := strings.ToLower(content)
	hits := 0
	for _, term := range terms {
		if strings.Contains(lowered, term) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

func significantTerms(s string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,;:!?\"'()[]{}")
		if len(w) < 4 || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, w)
	}
	return terms
}

// completenessScore combines length adequacy against a per-type target
// with a penalty for hollow markers.
func completenessScore(content string, targetWords int) float64 {
	words := len(strings.Fields(content))
	adequacy := minFloat(float64(words)/float64(targetWords), 1.0)
	return clamp01(adequacy - hollowPenalty(strings.ToLower(content)))
}

func hollowPenalty(lowered string) float64 {
	penalty := 0.0
	for _, marker := range hollowMarkers {
		if strings.Contains(lowered, marker) {
			penalty += 0.25
		}
	}
	return minFloat(penalty, 0.75)
}

// efficiencyScore rewards staying within a word budget and decays as the
// content overruns it.
func efficiencyScore(content string, budgetWords int) float64 {
	words := len(strings.Fields(content))
	if words == 0 {
		return 0
	}
	if words <= budgetWords {
		return 1.0
	}
	return maxFloat(float64(budgetWords)/float64(words), 0.2)
}

// polishScore penalizes truncation artifacts: unbalanced code fences, a
// mid-sentence final character, and runs of blank lines.
func polishScore(content string) float64 {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return 0
	}
	score := 1.0
	if strings.Count(content, "```")%2 != 0 {
		score -= 0.3
	}
	last := rune(trimmed[len(trimmed)-1])
	if !strings.ContainsRune(".!?`\"')}]", last) {
		score -= 0.2
	}
	if strings.Contains(content, "\n\n\n\n") {
		score -= 0.1
	}
	return clamp01(score)
}

// codeQuality checks for code structure: recognizable code markers,
// balanced delimiters and fences, no hollow markers.
func codeQuality(content string) float64 {
	score := 0.2
	if hasCodeMarkers(content) {
		score += 0.3
	}
	if delimitersBalanced(content) {
		score += 0.3
	}
	if strings.Count(content, "```")%2 == 0 {
		score += 0.2
	}
	return clamp01(score - hollowPenalty(strings.ToLower(content)))
}

var codeKeywords = []string{"func ", "def ", "class ", "return ", "import ", "const ", "var ", "=> ", "function "}

func hasCodeMarkers(content string) bool {
	if strings.Contains(content, "```") {
		return true
	}
	for _, kw := range codeKeywords {
		if strings.Contains(content, kw) {
			return true
		}
	}
	return false
}

func delimitersBalanced(content string) bool {
	return strings.Count(content, "(") == strings.Count(content, ")") &&
		strings.Count(content, "[") == strings.Count(content, "]") &&
		strings.Count(content, "{") == strings.Count(content, "}")
}

// lexicalDiversity is the distinct-word ratio, discounted for very short
// texts where high diversity is trivial.
func lexicalDiversity(content string) float64 {
	words := strings.Fields(strings.ToLower(content))
	if len(words) == 0 {
		return 0
	}
	distinct := make(map[string]bool, len(words))
	for _, w := range words {
		distinct[w] = true
	}
	score := minFloat(float64(len(distinct))/float64(len(words))*2, 1.0)
	if len(words) < 50 {
		score *= float64(len(words)) / 50.0
	}
	return clamp01(score)
}

// factualQuality rewards concrete figures and multi-sentence structure,
// and penalizes hedging language.
func factualQuality(content string) float64 {
	lowered := strings.ToLower(content)
	score := 0.5
	if strings.IndexFunc(content, unicode.IsDigit) >= 0 {
		score += 0.25
	}
	if countSentences(content) >= 3 {
		score += 0.25
	}
	for _, phrase := range hedgingPhrases {
		score -= 0.15 * float64(strings.Count(lowered, phrase))
	}
	return clamp01(score)
}

// transactionalQuality rewards direct, brief replies.
func transactionalQuality(content string) float64 {
	lowered := strings.ToLower(content)
	score := 1.0
	for _, phrase := range fillerPhrases {
		if strings.Contains(lowered, phrase) {
			score -= 0.2
		}
	}
	if len(strings.Fields(content)) > 200 {
		score -= 0.3
	}
	return clamp01(score)
}

func countSentences(content string) int {
	return strings.Count(content, ".") + strings.Count(content, "!") + strings.Count(content, "?")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func minFloat(a, b float64) float64 {
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
