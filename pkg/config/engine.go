package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// EngineConfig holds the tournament engine tuning surface.
type EngineConfig struct {
	Decay                   float64                 `yaml:"decay,omitempty"`
	Epsilon                 float64                 `yaml:"epsilon,omitempty"`
	MinProviders            int                     `yaml:"min_providers,omitempty"`
	DefaultProviders        int                     `yaml:"default_providers,omitempty"`
	RoundDeadlineMultiplier float64                 `yaml:"round_deadline_multiplier,omitempty"`
	RetryCountMax           int                     `yaml:"retry_count_max,omitempty"`
	SignificanceMinSamples  int                     `yaml:"significance_min_samples,omitempty"`
	MaxParallelCalls        int64                   `yaml:"max_parallel_calls,omitempty"`
	CallTimeoutMs           int                     `yaml:"call_timeout_ms,omitempty"`
	TaskTypes               map[string]TaskTypeSpec `yaml:"task_types,omitempty"`
	Classifier              ClassifierConfig        `yaml:"classifier,omitempty"`
	Circuit                 CircuitConfig           `yaml:"circuit,omitempty"`
	Retry                   RetryConfig             `yaml:"retry,omitempty"`
	Providers               map[string]ProviderSpec `yaml:"providers,omitempty"`
	Pricing                 PricingConfig           `yaml:"pricing,omitempty"`
}

// TaskTypeSpec defines trigger phrases for one task-type label.
type TaskTypeSpec struct {
	Triggers []string `yaml:"triggers"`
}

// ClassifierConfig tunes the task classifier.
type ClassifierConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold,omitempty"`
	EnableLLMTieBreaker *bool   `yaml:"enable_llm_tie_breaker,omitempty"`
	Adapter             string  `yaml:"adapter,omitempty"`
	Model               string  `yaml:"model,omitempty"`
	CacheTTLMs          int     `yaml:"cache_ttl_ms,omitempty"`
	CacheSize           int     `yaml:"cache_size,omitempty"`
}

// CircuitConfig tunes per-provider circuit breakers.
type CircuitConfig struct {
	FailureThreshold  int `yaml:"failure_threshold,omitempty"`
	RecoveryTimeoutMs int `yaml:"recovery_timeout_ms,omitempty"`
	SuccessThreshold  int `yaml:"success_threshold,omitempty"`
}

// RetryConfig defines retry and backoff behavior for provider calls.
type RetryConfig struct {
	MaxRetries    int `yaml:"max_retries,omitempty"`
	BaseBackoffMs int `yaml:"base_backoff_ms,omitempty"`
	MaxBackoffMs  int `yaml:"max_backoff_ms,omitempty"`
}

// ProviderSpec declares one upstream provider.
type ProviderSpec struct {
	Adapter              string   `yaml:"adapter"`
	Model                string   `yaml:"model"`
	Capabilities         []string `yaml:"capabilities"`
	CostPerUnit          float64  `yaml:"cost_per_unit,omitempty"`
	DeclaredAvgLatencyMs int64    `yaml:"declared_avg_latency_ms,omitempty"`
	Disabled             bool     `yaml:"disabled,omitempty"`
}

// PricingConfig maps adapter -> model -> pricing.
type PricingConfig map[string]map[string]ModelPricing

// ModelPricing defines per-1k token pricing.
type ModelPricing struct {
	PromptPer1K     float64 `yaml:"prompt_per_1k,omitempty"`
	CompletionPer1K float64 `yaml:"completion_per_1k,omitempty"`
}

// LoadEngineConfig reads engine configuration from a YAML file.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg EngineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyEngineDefaults(&cfg)
	return &cfg, nil
}

func defaultTaskTypes() map[string]TaskTypeSpec {
	return map[string]TaskTypeSpec{
		"code": {
			Triggers: []string{"implement", "code", "function", "refactor", "debug", "fix", "bug", "script", "api", "compile"},
		},
		"creative": {
			Triggers: []string{"write", "story", "poem", "design", "creative", "brand", "campaign", "slogan", "imagine"},
		},
		"factual": {
			Triggers: []string{"what is", "who is", "when", "explain", "research", "look up", "compare", "summarize", "fact"},
		},
		"transactional": {
			Triggers: []string{"order", "checkout", "purchase", "invoice", "payment", "schedule", "book", "cancel", "refund"},
		},
	}
}

// DefaultEngineConfig returns the default engine configuration.
func DefaultEngineConfig() *EngineConfig {
	cfg := &EngineConfig{
		TaskTypes: defaultTaskTypes(),
		Providers: map[string]ProviderSpec{
			"anthropic": {
				Adapter:              "anthropic",
				Model:                "claude-sonnet-4-20250514",
				Capabilities:         []string{"creative", "code", "factual"},
				CostPerUnit:          0.009,
				DeclaredAvgLatencyMs: 2000,
			},
			"openai": {
				Adapter:              "openai",
				Model:                "gpt-5.2-thinking",
				Capabilities:         []string{"creative", "code", "factual", "transactional"},
				CostPerUnit:          0.006,
				DeclaredAvgLatencyMs: 1800,
			},
			"google": {
				Adapter:              "google",
				Model:                "gemini-2.0-pro",
				Capabilities:         []string{"creative", "factual"},
				CostPerUnit:          0.004,
				DeclaredAvgLatencyMs: 1500,
			},
			"deepseek": {
				Adapter:              "deepseek",
				Model:                "deepseek-chat",
				Capabilities:         []string{"code", "transactional"},
				CostPerUnit:          0.0003,
				DeclaredAvgLatencyMs: 2500,
			},
		},
		Pricing: PricingConfig{
			"anthropic": {
				"claude-sonnet-4-20250514": {PromptPer1K: 0.003, CompletionPer1K: 0.015},
				"claude-opus-4-20250514":   {PromptPer1K: 0.015, CompletionPer1K: 0.075},
			},
			"openai": {
				"default": {PromptPer1K: 0.002, CompletionPer1K: 0.008},
			},
			"google": {
				"default": {PromptPer1K: 0.00125, CompletionPer1K: 0.005},
			},
			"deepseek": {
				"default": {PromptPer1K: 0.00014, CompletionPer1K: 0.00028},
			},
		},
	}

	applyEngineDefaults(cfg)
	return cfg
}

// Validate checks that the configuration is internally consistent.
func (c *EngineConfig) Validate() error {
	if c.Decay <= 0 || c.Decay >= 1 {
		return fmt.Errorf("decay must be in (0,1), got %v", c.Decay)
	}
	if c.Epsilon < 0 || c.Epsilon > 1 {
		return fmt.Errorf("epsilon must be in [0,1], got %v", c.Epsilon)
	}
	if c.MinProviders < 1 {
		return fmt.Errorf("min_providers must be at least 1, got %d", c.MinProviders)
	}
	if c.RoundDeadlineMultiplier < 1 {
		return fmt.Errorf("round_deadline_multiplier must be at least 1, got %v", c.RoundDeadlineMultiplier)
	}
	if c.RetryCountMax < 0 {
		return fmt.Errorf("retry_count_max must not be negative, got %d", c.RetryCountMax)
	}
	for name, spec := range c.Providers {
		if spec.Adapter == "" {
			return fmt.Errorf("provider %s: adapter is required", name)
		}
		if spec.Model == "" {
			return fmt.Errorf("provider %s: model is required", name)
		}
		for _, capability := range spec.Capabilities {
			if _, ok := c.TaskTypes[capability]; !ok {
				return fmt.Errorf("provider %s: unknown capability %q", name, capability)
			}
		}
	}
	return nil
}

// TaskTypeLabels returns the configured task-type labels in sorted order.
func (c *EngineConfig) TaskTypeLabels() []string {
	labels := make([]string, 0, len(c.TaskTypes))
	for label := range c.TaskTypes {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

func applyEngineDefaults(cfg *EngineConfig) {
	if cfg == nil {
		return
	}
	if cfg.Decay == 0 {
		cfg.Decay = 0.9
	}
	if cfg.Epsilon == 0 {
		cfg.Epsilon = 0.1
	}
	if cfg.MinProviders == 0 {
		cfg.MinProviders = 2
	}
	if cfg.DefaultProviders == 0 {
		cfg.DefaultProviders = 3
	}
	if cfg.RoundDeadlineMultiplier == 0 {
		cfg.RoundDeadlineMultiplier = 1.5
	}
	if cfg.RetryCountMax == 0 {
		cfg.RetryCountMax = 2
	}
	if cfg.SignificanceMinSamples == 0 {
		cfg.SignificanceMinSamples = 10
	}
	if cfg.MaxParallelCalls == 0 {
		cfg.MaxParallelCalls = 8
	}
	if cfg.CallTimeoutMs == 0 {
		cfg.CallTimeoutMs = 30000
	}
	if cfg.Classifier.ConfidenceThreshold == 0 {
		cfg.Classifier.ConfidenceThreshold = 0.65
	}
	if cfg.Classifier.EnableLLMTieBreaker == nil {
		enabled := true
		cfg.Classifier.EnableLLMTieBreaker = &enabled
	}
	if cfg.Classifier.CacheTTLMs == 0 {
		cfg.Classifier.CacheTTLMs = 300000
	}
	if cfg.Classifier.CacheSize == 0 {
		cfg.Classifier.CacheSize = 512
	}
	if cfg.Circuit.FailureThreshold == 0 {
		cfg.Circuit.FailureThreshold = 5
	}
	if cfg.Circuit.RecoveryTimeoutMs == 0 {
		cfg.Circuit.RecoveryTimeoutMs = 30000
	}
	if cfg.Circuit.SuccessThreshold == 0 {
		cfg.Circuit.SuccessThreshold = 2
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 2
	}
	if cfg.Retry.BaseBackoffMs == 0 {
		cfg.Retry.BaseBackoffMs = 200
	}
	if cfg.Retry.MaxBackoffMs == 0 {
		cfg.Retry.MaxBackoffMs = 2000
	}
	if cfg.Retry.MaxBackoffMs < cfg.Retry.BaseBackoffMs {
		cfg.Retry.MaxBackoffMs = cfg.Retry.BaseBackoffMs
	}
	if cfg.TaskTypes == nil {
		cfg.TaskTypes = defaultTaskTypes()
	}
}
