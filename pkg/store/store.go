// Package store persists learned provider profiles, finalized rounds,
// verification records, and experiments across engine runs. Two
// implementations share one keyspace: an embedded Badger database for
// durable runs and an in-memory map for tests and storeless CLI runs.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/zen-systems/gauntlet/pkg/registry"
	"github.com/zen-systems/gauntlet/pkg/stats"
	"github.com/zen-systems/gauntlet/pkg/tournament"
	"github.com/zen-systems/gauntlet/pkg/verify"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("not found")

// Repository is the full persistence surface of the engine.
type Repository interface {
	SaveProfile(ctx context.Context, profile *registry.Profile) error
	LoadProfile(ctx context.Context, providerID string) (*registry.Profile, error)
	ListProfiles(ctx context.Context) ([]*registry.Profile, error)
	AppendRound(ctx context.Context, round *tournament.Round) error
	ListRounds(ctx context.Context, taskID string) ([]*tournament.Round, error)
	AppendVerification(ctx context.Context, record *verify.Record) error
	ListVerifications(ctx context.Context, taskID string) ([]*verify.Record, error)
	SaveExperiment(ctx context.Context, exp *stats.Experiment) error
	LoadExperiment(ctx context.Context, id string) (*stats.Experiment, error)
	Close() error
}

const (
	profilePrefix      = "profile/"
	roundPrefix        = "round/"
	verificationPrefix = "verification/"
	experimentPrefix   = "experiment/"
)

func profileKey(providerID string) []byte {
	return []byte(profilePrefix + providerID)
}

func roundKey(taskID, roundID string) []byte {
	return []byte(roundPrefix + taskID + "/" + roundID)
}

func roundScanPrefix(taskID string) []byte {
	return []byte(roundPrefix + taskID + "/")
}

// verificationKey zero-pads the sequence so lexical key order matches
// append order.
func verificationKey(taskID string, seq int) []byte {
	return []byte(fmt.Sprintf("%s%s/%06d", verificationPrefix, taskID, seq))
}

func verificationScanPrefix(taskID string) []byte {
	return []byte(verificationPrefix + taskID + "/")
}

func experimentKey(id string) []byte {
	return []byte(experimentPrefix + id)
}
