package registry

import (
	"time"

	"github.com/zen-systems/gauntlet/pkg/classify"
)

// Profile is the performance record for one upstream provider. Aggregates
// are mutated only through the registry after a finalized round; readers
// get copies. Profiles are never deleted, only disabled, so historical
// statistics survive provider outages.
type Profile struct {
	ProviderID           string    `json:"provider_id"`
	Adapter              string    `json:"adapter"`
	Model                string    `json:"model"`
	Capabilities         []string  `json:"capabilities"`
	CostPerUnit          float64   `json:"cost_per_unit"`
	DeclaredAvgLatencyMs int64     `json:"declared_avg_latency_ms"`
	WinRate              float64   `json:"win_rate"`
	SampleCount          int       `json:"sample_count"`
	AvgLatencyMs         float64   `json:"avg_latency_ms"`
	AvgCost              float64   `json:"avg_cost"`
	Wins                 int       `json:"wins"`
	Disabled             bool      `json:"disabled"`
	LastUpdated          time.Time `json:"last_updated"`
}

// HasCapability reports whether the provider can serve the task type.
// TypeGeneral tasks are provider-agnostic and every provider qualifies.
func (p *Profile) HasCapability(taskType string) bool {
	if taskType == classify.TypeGeneral || taskType == "" {
		return true
	}
	for _, capability := range p.Capabilities {
		if capability == taskType {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	copied := *p
	copied.Capabilities = append([]string(nil), p.Capabilities...)
	return &copied
}
