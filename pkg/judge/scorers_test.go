package judge

import (
	"context"
	"strings"
	"testing"
)

func scoreWith(t *testing.T, s Scorer, task Task, content string) float64 {
	t.Helper()
	score, err := s.Score(context.Background(), task, testArtifact(content))
	if err != nil {
		t.Fatalf("%s.Score: %v", s.Name(), err)
	}
	if score < 0 || score > 1 {
		t.Fatalf("%s.Score out of range: %v", s.Name(), score)
	}
	return score
}

func TestCodeScorerPrefersRealCode(t *testing.T) {
	task := Task{Type: "code", Description: "write a function that parses integers"}

	real := "Here is the parser:\n\n```go\nfunc parseInts(input string) ([]int, error) {\n" +
		"\tparts := strings.Fields(input)\n\tout := make([]int, 0, len(parts))\n" +
		"\tfor _, p := range parts {\n\t\tn, err := strconv.Atoi(p)\n\t\tif err != nil {\n" +
		"\t\t\treturn nil, err\n\t\t}\n\t\tout = append(out, n)\n\t}\n\treturn out, nil\n}\n```"
	hollow := "func parseInts(input string) ([]int, error) {\n\t// TODO: implement\n\treturn nil, nil\n}"

	s := &codeScorer{}
	if scoreWith(t, s, task, real) <= scoreWith(t, s, task, hollow) {
		t.Fatal("real implementation should outscore a TODO stub")
	}
}

func TestCodeScorerEmptyContent(t *testing.T) {
	if got := scoreWith(t, &codeScorer{}, Task{Type: "code"}, "   \n  "); got != 0 {
		t.Fatalf("empty content should score 0, got %v", got)
	}
}

func TestCreativeScorerRewardsDiversity(t *testing.T) {
	task := Task{Type: "creative", Description: "write about the harbor at dawn"}

	diverse := "The harbor woke slowly under a pewter sky. Gulls argued over fish scraps while " +
		"rope creaked against weathered pilings. A ferry horn rolled across the water, low and " +
		"patient, and the first vendors wheeled carts of oranges toward the quay. Light gathered " +
		"at the horizon until masts threw long thin shadows over the tide."
	repetitive := strings.Repeat("the harbor the harbor the harbor ", 12) + "."

	s := &creativeScorer{}
	if scoreWith(t, s, task, diverse) <= scoreWith(t, s, task, repetitive) {
		t.Fatal("diverse prose should outscore repeated words")
	}
}

func TestFactualScorerPenalizesHedging(t *testing.T) {
	task := Task{Type: "factual", Description: "when was the transcontinental railroad completed"}

	precise := "The first transcontinental railroad was completed on May 10, 1869, at Promontory " +
		"Summit, Utah. The Central Pacific and Union Pacific lines met there. The ceremonial " +
		"golden spike joined the tracks."
	hedged := "I think the transcontinental railroad was maybe finished sometime around then, " +
		"but I'm not sure. It might be earlier. It seems hard to say, possibly later."

	s := &factualScorer{}
	if scoreWith(t, s, task, precise) <= scoreWith(t, s, task, hedged) {
		t.Fatal("precise answer should outscore hedged answer")
	}
}

func TestTransactionalScorerRewardsBrevity(t *testing.T) {
	task := Task{Type: "transactional", Description: "confirm the meeting time for tuesday"}

	brief := "Confirmed: the meeting is Tuesday at 10:00 AM in room 4B."
	padded := "I'd be happy to help with that! Great question. " + strings.Repeat("Let me provide extensive surrounding detail about the meeting logistics and history. ", 20)

	s := &transactionalScorer{}
	if scoreWith(t, s, task, brief) <= scoreWith(t, s, task, padded) {
		t.Fatal("brief confirmation should outscore padded reply")
	}
}

func TestRelevanceScore(t *testing.T) {
	got := relevanceScore("reverse a linked list", "This reverses the linked list in place.")
	if got != 1.0 {
		t.Fatalf("full overlap should score 1.0, got %v", got)
	}

	got = relevanceScore("reverse a linked list", "completely unrelated text about weather")
	if got != 0 {
		t.Fatalf("no overlap should score 0, got %v", got)
	}

	if got := relevanceScore("a of to", "anything"); got != 0.5 {
		t.Fatalf("no significant terms should score neutral 0.5, got %v", got)
	}
}

func TestHollowPenaltyCaps(t *testing.T) {
	lowered := "todo fixme not implemented placeholder your code here"
	if got := hollowPenalty(lowered); got != 0.75 {
		t.Fatalf("penalty should cap at 0.75, got %v", got)
	}
	if got := hollowPenalty("clean content"); got != 0 {
		t.Fatalf("clean content should have no penalty, got %v", got)
	}
}

func TestPolishScoreDetectsTruncation(t *testing.T) {
	complete := "The function is ready."
	truncated := "The function is ready and then it"

	if polishScore(complete) <= polishScore(truncated) {
		t.Fatal("mid-sentence ending should lower polish")
	}

	unbalanced := "```go\nfunc f() {}\n"
	balanced := "```go\nfunc f() {}\n```"
	if polishScore(balanced) <= polishScore(unbalanced) {
		t.Fatal("unbalanced fence should lower polish")
	}
}

func TestEfficiencyScoreDecaysPastBudget(t *testing.T) {
	within := strings.Repeat("word ", 100)
	over := strings.Repeat("word ", 1000)

	if got := efficiencyScore(within, 120); got != 1.0 {
		t.Fatalf("within budget should score 1.0, got %v", got)
	}
	if got := efficiencyScore(over, 120); got >= 1.0 || got < 0.2 {
		t.Fatalf("overrun should decay with a floor, got %v", got)
	}
}

func TestDelimitersBalanced(t *testing.T) {
	if !delimitersBalanced("func f(a []int) { return }") {
		t.Fatal("balanced code flagged unbalanced")
	}
	if delimitersBalanced("func f(a []int { return }") {
		t.Fatal("missing paren not detected")
	}
}
