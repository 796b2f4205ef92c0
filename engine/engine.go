// Package engine defines the narrow contract between a charge shard and its
// similarity engine.
//
// The shard owns batching, caching, and the spectrum log; the engine owns
// ranking. Any implementation satisfying Engine can back a shard. The
// entropy subpackage provides the default one.
package engine

import (
	"context"
	"errors"

	"github.com/2bereal-me/MSEntropy/spectrum"
)

// Method selects the query strategy.
type Method string

const (
	// MethodOpen matches query fragments against raw fragment masses.
	MethodOpen Method = "open"
	// MethodNeutralLoss matches against precursor-minus-fragment mass
	// differences. Requires a precursor m/z on both sides.
	MethodNeutralLoss Method = "neutral_loss"
)

var (
	// ErrUnknownMethod is returned for a Method the engine does not implement.
	ErrUnknownMethod = errors.New("unknown search method")
	// ErrPrecursorRequired is returned when a neutral-loss query lacks a
	// precursor m/z.
	ErrPrecursorRequired = errors.New("precursor m/z required")
)

// Candidate is one ranked match. Position is the shard-local index shared
// with the shard's identifier and offset arrays.
type Candidate struct {
	Position int
	Score    float32
}

// Query describes one similarity search.
type Query struct {
	Peaks []spectrum.Peak
	// PrecursorMZ of the query spectrum; negative means unknown.
	PrecursorMZ float32
	Method      Method
	TopN        int
}

// Engine builds and queries the similarity index for one shard.
type Engine interface {
	// Build folds a drained cache batch into the index. resort trades
	// ingestion throughput for query latency; neutralLoss additionally
	// maintains the neutral-loss variant.
	Build(ctx context.Context, batch []*spectrum.Spectrum, resort bool, neutralLoss bool) error

	// Query returns candidates ordered by strictly decreasing score.
	Query(ctx context.Context, q Query) ([]Candidate, error)

	// Persist writes the engine's own index structures under its directory.
	Persist() error

	// Load restores persisted index structures. A never-persisted engine
	// loads empty.
	Load() error

	// GroupStarts exposes the group-boundary bookkeeping: the starting
	// shard position of each build batch. The shard persists and restores
	// this sequence alongside its own arrays.
	GroupStarts() []uint64
	SetGroupStarts(starts []uint64)
}
