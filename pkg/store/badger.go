package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/zen-systems/gauntlet/pkg/registry"
	"github.com/zen-systems/gauntlet/pkg/stats"
	"github.com/zen-systems/gauntlet/pkg/tournament"
	"github.com/zen-systems/gauntlet/pkg/verify"
)

// BadgerStore persists engine state in an embedded Badger database.
type BadgerStore struct {
	db     *badger.DB
	logger *zap.Logger
}

// BadgerOption configures a BadgerStore.
type BadgerOption func(*BadgerStore)

// WithBadgerLogger sets the logger for store operations. Badger's own
// internal logging stays disabled either way.
func WithBadgerLogger(logger *zap.Logger) BadgerOption {
	return func(s *BadgerStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// OpenBadger opens the store at dir, creating the database if needed.
func OpenBadger(dir string, opts ...BadgerOption) (*BadgerStore, error) {
	s := &BadgerStore{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger store at %s: %w", dir, err)
	}
	s.db = db
	return s, nil
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// SaveProfile stores one provider profile.
func (s *BadgerStore) SaveProfile(ctx context.Context, profile *registry.Profile) error {
	return s.put(ctx, profileKey(profile.ProviderID), profile)
}

// LoadProfile returns the stored profile for a provider.
func (s *BadgerStore) LoadProfile(ctx context.Context, providerID string) (*registry.Profile, error) {
	var profile registry.Profile
	if err := s.get(ctx, profileKey(providerID), &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// ListProfiles returns all stored profiles sorted by provider id.
func (s *BadgerStore) ListProfiles(ctx context.Context) ([]*registry.Profile, error) {
	var profiles []*registry.Profile
	err := s.scan(ctx, []byte(profilePrefix), func(value []byte) error {
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
func (s *BadgerStore) AppendRound(ctx context.Context, round *tournament.Round) error {
	return s.put(ctx, roundKey(round.TaskID, round.ID), round)
}

// ListRounds returns the rounds recorded for a task in start order.
func (s *BadgerStore) ListRounds(ctx context.Context, taskID string) ([]*tournament.Round, error) {
	var rounds []*tournament.Round
	err := s.scan(ctx, roundScanPrefix(taskID), func(value []byte) error {
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
func (s *BadgerStore) AppendVerification(ctx context.Context, record *verify.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal verification record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		prefix := verificationScanPrefix(record.TaskID)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		seq := 0
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			seq++
		}
		it.Close()
		return txn.Set(verificationKey(record.TaskID, seq), data)
	})
}

// ListVerifications returns the verification records for a task in
// append order.
func (s *BadgerStore) ListVerifications(ctx context.Context, taskID string) ([]*verify.Record, error) {
	var records []*verify.Record
	err := s.scan(ctx, verificationScanPrefix(taskID), func(value []byte) error {
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
func (s *BadgerStore) SaveExperiment(ctx context.Context, exp *stats.Experiment) error {
	return s.put(ctx, experimentKey(exp.ID), exp)
}

// LoadExperiment returns a stored experiment by id.
func (s *BadgerStore) LoadExperiment(ctx context.Context, id string) (*stats.Experiment, error) {
	var exp stats.Experiment
	if err := s.get(ctx, experimentKey(id), &exp); err != nil {
		return nil, err
	}
	return &exp, nil
}

func (s *BadgerStore) put(ctx context.Context, key []byte, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		return err
	}
	s.logger.Debug("stored", zap.String("key", string(key)), zap.Int("bytes", len(data)))
	return nil
}

func (s *BadgerStore) get(ctx context.Context, key []byte, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, out)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}

// scan visits values under prefix in lexical key order.
func (s *BadgerStore) scan(ctx context.Context, prefix []byte, visit func(value []byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := visit(data); err != nil {
				return err
			}
		}
		return nil
	})
}
