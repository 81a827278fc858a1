package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/zen-systems/gauntlet/pkg/registry"
	"github.com/zen-systems/gauntlet/pkg/stats"
	"github.com/zen-systems/gauntlet/pkg/tournament"
	"github.com/zen-systems/gauntlet/pkg/verify"
)

// MemoryStore keeps engine state in process memory. It backs tests and
// CLI runs that have no store directory configured. Values round-trip
// through JSON so both stores return detached copies.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// SaveProfile stores one provider profile.
func (s *MemoryStore) SaveProfile(ctx context.Context, profile *registry.Profile) error {
	return s.put(ctx, profileKey(profile.ProviderID), profile)
}

// LoadProfile returns the stored profile for a provider.
func (s *MemoryStore) LoadProfile(ctx context.Context, providerID string) (*registry.Profile, error) {
	var profile registry.Profile
	if err := s.get(ctx, profileKey(providerID), &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// ListProfiles returns all stored profiles sorted by provider id.
func (s *MemoryStore) ListProfiles(ctx context.Context) ([]*registry.Profile, error) {
	var profiles []*registry.Profile
	err := s.scan(ctx, profilePrefix, func(value []byte) error {
		var profile registry.Profile
		if err := json.Unmarshal(value, &profile); err != nil {
			return fmt.Errorf("unmarshal profile: %w", err)
		}
		profiles = append(profiles, &profile)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].ProviderID < profiles[j].ProviderID
	})
	return profiles, nil
}

// AppendRound stores one finalized round.
func (s *MemoryStore) AppendRound(ctx context.Context, round *tournament.Round) error {
	return s.put(ctx, roundKey(round.TaskID, round.ID), round)
}

// ListRounds returns the rounds recorded for a task in start order.
func (s *MemoryStore) ListRounds(ctx context.Context, taskID string) ([]*tournament.Round, error) {
	var rounds []*tournament.Round
	err := s.scan(ctx, string(roundScanPrefix(taskID)), func(value []byte) error {
		var round tournament.Round
		if err := json.Unmarshal(value, &round); err != nil {
			return fmt.Errorf("unmarshal round: %w", err)
		}
		rounds = append(rounds, &round)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(rounds, func(i, j int) bool {
		return rounds[i].StartedAt.Before(rounds[j].StartedAt)
	})
	return rounds, nil
}

// AppendVerification stores one verification record under the next
// sequence number for its task.
func (s *MemoryStore) AppendVerification(ctx context.Context, record *verify.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal verification record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := string(verificationScanPrefix(record.TaskID))
	seq := 0
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			seq++
		}
	}
	s.data[string(verificationKey(record.TaskID, seq))] = data
	return nil
}

// ListVerifications returns the verification records for a task in
// append order.
func (s *MemoryStore) ListVerifications(ctx context.Context, taskID string) ([]*verify.Record, error) {
	var records []*verify.Record
	err := s.scan(ctx, string(verificationScanPrefix(taskID)), func(value []byte) error {
		var record verify.Record
		if err := json.Unmarshal(value, &record); err != nil {
			return fmt.Errorf("unmarshal verification record: %w", err)
		}
		records = append(records, &record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// SaveExperiment stores one experiment.
func (s *MemoryStore) SaveExperiment(ctx context.Context, exp *stats.Experiment) error {
	return s.put(ctx, experimentKey(exp.ID), exp)
}

// LoadExperiment returns a stored experiment by id.
func (s *MemoryStore) LoadExperiment(ctx context.Context, id string) (*stats.Experiment, error) {
	var exp stats.Experiment
	if err := s.get(ctx, experimentKey(id), &exp); err != nil {
		return nil, err
	}
	return &exp, nil
}

func (s *MemoryStore) put(ctx context.Context, key []byte, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	s.mu.Lock()
	s.data[string(key)] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) get(ctx context.Context, key []byte, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	data, ok := s.data[string(key)]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(data, out)
}

// scan visits values under prefix in lexical key order, matching the
// iteration order of the Badger store.
func (s *MemoryStore) scan(ctx context.Context, prefix string, visit func(value []byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	values := make(map[string][]byte, len(keys))
	for _, key := range keys {
		values[key] = s.data[key]
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	for _, key := range keys {
		if err := visit(values[key]); err != nil {
			return err
		}
	}
	return nil
}
