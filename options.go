package msentropy

import (
	"github.com/2bereal-me/MSEntropy/engine"
	"github.com/2bereal-me/MSEntropy/engine/entropy"
	"github.com/2bereal-me/MSEntropy/shard"
)

// EngineFactory creates a similarity engine rooted at a shard directory.
type EngineFactory func(dir string) engine.Engine

type options struct {
	logger           *Logger
	buildThreshold   int
	insertMode       shard.InsertMode
	neutralLoss      bool
	cleanEnabled     bool
	precursorRemoval float32 // Da below precursor excluded; negative disables
	noiseThreshold   float32
	minPeakGap       float32
	maxPeaks         int
	engineFactory    EngineFactory
	fileIDSource     func() uint64
}

func defaultOptions() options {
	return options{
		logger:           NoopLogger(),
		buildThreshold:   shard.DefaultBuildThreshold,
		insertMode:       shard.FastUpdate,
		neutralLoss:      true,
		cleanEnabled:     true,
		precursorRemoval: 1.6,
		noiseThreshold:   0.01,
		minPeakGap:       0.05,
		maxPeaks:         0,
		engineFactory:    func(dir string) engine.Engine { return entropy.New(dir) },
	}
}

// Option configures a Repository.
type Option func(*options)

// WithLogger sets the logger. Nil restores the no-op default.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithBuildThreshold sets the per-shard cache size that triggers an index
// build cycle during ingestion.
func WithBuildThreshold(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.buildThreshold = n
		}
	}
}

// WithInsertMode selects fast_update (cheap ingestion) or fast_search
// (resorted index, cheaper queries) for threshold-triggered builds.
func WithInsertMode(mode shard.InsertMode) Option {
	return func(o *options) {
		o.insertMode = mode
	}
}

// WithNeutralLoss toggles maintenance of the neutral-loss index variant.
func WithNeutralLoss(enabled bool) Option {
	return func(o *options) {
		o.neutralLoss = enabled
	}
}

// WithCleaning toggles peak cleaning during ingestion.
func WithCleaning(enabled bool) Option {
	return func(o *options) {
		o.cleanEnabled = enabled
	}
}

// WithPrecursorRemoval sets the precursor exclusion window in Da: peaks above
// precursorMZ minus the window are dropped during cleaning. Negative disables
// precursor-related filtering.
func WithPrecursorRemoval(da float32) Option {
	return func(o *options) {
		o.precursorRemoval = da
	}
}

// WithNoiseThreshold sets the relative intensity below which peaks are
// treated as noise during cleaning.
func WithNoiseThreshold(t float32) Option {
	return func(o *options) {
		o.noiseThreshold = t
	}
}

// WithMinPeakGap sets the minimum m/z difference between adjacent peaks after
// cleaning, in Da.
func WithMinPeakGap(da float32) Option {
	return func(o *options) {
		o.minPeakGap = da
	}
}

// WithMaxPeaks caps the number of peaks kept per spectrum after cleaning.
// Zero means unlimited.
func WithMaxPeaks(n int) Option {
	return func(o *options) {
		o.maxPeaks = n
	}
}

// WithEngineFactory replaces the default entropy engine.
func WithEngineFactory(f EngineFactory) Option {
	return func(o *options) {
		if f != nil {
			o.engineFactory = f
		}
	}
}

// WithFileIDSource overrides the random file-identifier generator.
// Identifiers must lie in [0, 2^63). Meant for tests.
func WithFileIDSource(fn func() uint64) Option {
	return func(o *options) {
		o.fileIDSource = fn
	}
}
