package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/gauntlet/pkg/adapter"
	"github.com/zen-systems/gauntlet/pkg/config"
)

// Classifier maps task descriptions to task-type labels. The heuristic
// trigger matcher runs first; when its confidence falls below the
// configured threshold and a tie-breaker adapter is available, an LLM
// call disambiguates between the candidate labels. Results below the
// threshold after any tie-break downgrade to TypeGeneral.
type Classifier struct {
	adapters map[string]adapter.Adapter
	cfg      *config.EngineConfig
	cache    *resultCache
	logger   *zap.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Classifier) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClassifier creates a classifier with adapters and engine config.
func NewClassifier(adapters map[string]adapter.Adapter, cfg *config.EngineConfig, opts ...Option) *Classifier {
	c := &Classifier{
		adapters: adapters,
		cfg:      cfg,
		logger:   zap.NewNop(),
	}
	ttl := 5 * time.Minute
	size := 512
	if cfg != nil {
		if cfg.Classifier.CacheTTLMs > 0 {
			ttl = time.Duration(cfg.Classifier.CacheTTLMs) * time.Millisecond
		}
		if cfg.Classifier.CacheSize > 0 {
			size = cfg.Classifier.CacheSize
		}
	}
	c.cache = newResultCache(ttl, size)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify determines the task type for a description.
func (c *Classifier) Classify(ctx context.Context, description string, hints []string) (*Result, error) {
	key := cacheKey(description, hints)
	if cached, ok := c.cache.get(key); ok {
		cached.Cached = true
		c.logger.Debug("classification cache hit", zap.String("task_type", cached.TaskType))
		return cached, nil
	}

	result := HeuristicDecision(description, hints, c.cfg)

	threshold := c.threshold()
	if c.shouldUseLLMTieBreaker(result, threshold) {
		if err := c.tieBreak(ctx, description, result); err != nil {
			c.logger.Debug("tie-breaker failed; keeping heuristic result", zap.Error(err))
		}
	}

	if result.Confidence < threshold {
		result.LowConfidence = true
		if result.TaskType != TypeGeneral {
			result.Reasons = append(result.Reasons,
				fmt.Sprintf("confidence %.2f below threshold %.2f; downgraded to general", result.Confidence, threshold))
			result.TaskType = TypeGeneral
		}
	}

	c.cache.put(key, *result)
	return result, nil
}

func (c *Classifier) threshold() float64 {
	if c.cfg == nil || c.cfg.Classifier.ConfidenceThreshold <= 0 {
		return 0.65
	}
	return c.cfg.Classifier.ConfidenceThreshold
}

func (c *Classifier) shouldUseLLMTieBreaker(result *Result, threshold float64) bool {
	if c.cfg == nil || result == nil {
		return false
	}
	if c.cfg.Classifier.EnableLLMTieBreaker != nil && !*c.cfg.Classifier.EnableLLMTieBreaker {
		return false
	}
	if result.Confidence >= threshold {
		return false
	}
	if len(result.Candidates) <= 1 {
		return false
	}
	return true
}

// tieBreak asks the configured adapter to choose between candidate labels.
// On any failure the heuristic result is left untouched.
func (c *Classifier) tieBreak(ctx context.Context, description string, result *Result) error {
	adapterName := strings.TrimSpace(c.cfg.Classifier.Adapter)
	model := strings.TrimSpace(c.cfg.Classifier.Model)
	if adapterName == "" || model == "" {
		return nil
	}

	adapterImpl, ok := c.adapters[adapterName]
	if !ok || adapterImpl == nil {
		return nil
	}

	promptText := buildClassifierPrompt(description, result.Candidates)
	resp, err := adapterImpl.Generate(ctx, model, promptText)
	if err != nil {
		result.Reasons = append(result.Reasons, fmt.Sprintf("classifier error: %v", err))
		return err
	}
	if resp == nil || resp.Artifact == nil {
		result.Reasons = append(result.Reasons, "classifier returned empty response")
		return fmt.Errorf("classifier returned empty response")
	}

	picked, err := parseClassifierResponse(resp.Artifact.Content)
	if err != nil {
		result.Reasons = append(result.Reasons, fmt.Sprintf("classifier response invalid: %v", err))
		return err
	}

	label := snapToCandidate(picked.TaskType, result.Candidates)
	if label == "" {
		result.Reasons = append(result.Reasons, "classifier task_type not in candidates")
		return fmt.Errorf("classifier task_type not in candidates")
	}
	if picked.Confidence < 0 || picked.Confidence > 1 {
		result.Reasons = append(result.Reasons, "classifier confidence out of range")
		return fmt.Errorf("classifier confidence out of range")
	}

	result.TaskType = label
	result.Confidence = picked.Confidence
	result.UsedLLM = true
	result.ClassifierAdapter = adapterName
	result.ClassifierModel = model
	if picked.Reason != "" {
		result.Reasons = append(result.Reasons, picked.Reason)
	}
	return nil
}

type classifierPick struct {
	TaskType   string  `json:"task_type"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

func parseClassifierResponse(content string) (*classifierPick, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var pick classifierPick
	if err := json.Unmarshal([]byte(content), &pick); err != nil {
		return nil, err
	}
	if pick.TaskType == "" {
		return nil, fmt.Errorf("missing task_type")
	}
	return &pick, nil
}

// snapToCandidate matches a returned label to a candidate label,
// tolerating case differences and sub/superstring drift. Returns the
// matched candidate label, or "" if nothing matches.
func snapToCandidate(label string, candidates []Candidate) string {
	if label == TypeGeneral {
		return TypeGeneral
	}
	lowered := strings.ToLower(strings.TrimSpace(label))
	for _, candidate := range candidates {
		if strings.ToLower(candidate.TaskType) == lowered {
			return candidate.TaskType
		}
	}
	for _, candidate := range candidates {
		ct := strings.ToLower(candidate.TaskType)
		if strings.Contains(lowered, ct) || strings.Contains(ct, lowered) {
			return candidate.TaskType
		}
	}
	return ""
}

func buildClassifierPrompt(description string, candidates []Candidate) string {
	var sb strings.Builder
	sb.WriteString("You are a task classifier. Choose the best task_type.\n")
	sb.WriteString("Return ONLY JSON: {\"task_type\":\"...\",\"confidence\":0-1,\"reason\":\"...\"}.\n\n")
	sb.WriteString("Task description:\n")
	sb.WriteString(description)
	sb.WriteString("\n\nCandidates:\n")

	for _, c := range candidates {
		sb.WriteString(fmt.Sprintf("- %s (score=%d)\n", c.TaskType, c.Score))
		if len(c.Triggers) > 0 {
			sb.WriteString(fmt.Sprintf("  triggers: %s\n", strings.Join(c.Triggers, ", ")))
		}
	}

	return sb.String()
}
