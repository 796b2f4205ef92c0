package entropy

import (
	"context"
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/2bereal-me/MSEntropy/engine"
	"github.com/2bereal-me/MSEntropy/spectrum"
)

const (
	// DefaultBinWidth is the posting-list bin width in Da.
	DefaultBinWidth = 0.05
	// DefaultMatchTolerance is the peak match window for scoring in Da.
	DefaultMatchTolerance = 0.02
)

// indexedSpectrum is the in-memory form of one indexed spectrum: peaks
// normalized to unit intensity sum, sorted by m/z.
type indexedSpectrum struct {
	precursorMZ float32
	peaks       []spectrum.Peak
}

// Engine is the default entropy-similarity engine for one shard.
// Positions are assigned in Build arrival order and therefore line up with
// the shard's identifier and offset arrays.
type Engine struct {
	dir string

	binWidth       float32
	matchTolerance float32

	specs       []indexedSpectrum
	fragBins    map[int32]*roaring.Bitmap
	nlBins      map[int32]*roaring.Bitmap
	groupStarts []uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithBinWidth sets the posting-list bin width in Da.
func WithBinWidth(w float32) Option {
	return func(e *Engine) {
		if w > 0 {
			e.binWidth = w
		}
	}
}

// WithMatchTolerance sets the peak match window for scoring in Da.
func WithMatchTolerance(tol float32) Option {
	return func(e *Engine) {
		if tol > 0 {
			e.matchTolerance = tol
		}
	}
}

// New creates an empty engine persisting under dir.
func New(dir string, opts ...Option) *Engine {
	e := &Engine{
		dir:            dir,
		binWidth:       DefaultBinWidth,
		matchTolerance: DefaultMatchTolerance,
		fragBins:       make(map[int32]*roaring.Bitmap),
		nlBins:         make(map[int32]*roaring.Bitmap),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Len returns the number of indexed spectra.
func (e *Engine) Len() int {
	return len(e.specs)
}

// GroupStarts returns the starting position of each build batch.
func (e *Engine) GroupStarts() []uint64 {
	return e.groupStarts
}

// SetGroupStarts restores group boundaries loaded by the shard.
func (e *Engine) SetGroupStarts(starts []uint64) {
	e.groupStarts = starts
}

// Build folds a batch into the index as one group.
func (e *Engine) Build(ctx context.Context, batch []*spectrum.Spectrum, resort bool, neutralLoss bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	e.groupStarts = append(e.groupStarts, uint64(len(e.specs)))

	for _, s := range batch {
		pos := uint32(len(e.specs))
		peaks := normalizePeaks(s.Peaks)
		e.specs = append(e.specs, indexedSpectrum{precursorMZ: s.PrecursorMZ, peaks: peaks})

		for _, p := range peaks {
			addPosting(e.fragBins, e.bin(p.MZ), pos)
			if neutralLoss && s.PrecursorMZ >= 0 {
				addPosting(e.nlBins, e.bin(s.PrecursorMZ-p.MZ), pos)
			}
		}
	}

	if resort {
		for _, bm := range e.fragBins {
			bm.RunOptimize()
		}
		for _, bm := range e.nlBins {
			bm.RunOptimize()
		}
	}
	return nil
}

// Query ranks candidates by entropy similarity, descending. Ties break on
// ascending position for a stable order.
func (e *Engine) Query(ctx context.Context, q engine.Query) ([]engine.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queryPeaks := normalizePeaks(q.Peaks)

	var candidates *roaring.Bitmap
	var scoreOf func(pos int) float32
	switch q.Method {
	case engine.MethodOpen, "":
		candidates = e.collect(e.fragBins, queryPeaks, func(mz float32) float32 { return mz })
		scoreOf = func(pos int) float32 {
			return similarity(queryPeaks, e.specs[pos].peaks, e.matchTolerance)
		}
	case engine.MethodNeutralLoss:
		if q.PrecursorMZ < 0 {
			return nil, fmt.Errorf("%w for %q search", engine.ErrPrecursorRequired, q.Method)
		}
		candidates = e.collect(e.nlBins, queryPeaks, func(mz float32) float32 { return q.PrecursorMZ - mz })
		// Neutral-loss search scores in loss space: both sides are
		// re-expressed as precursor-minus-fragment masses.
		queryLosses := neutralLossPeaks(queryPeaks, q.PrecursorMZ)
		scoreOf = func(pos int) float32 {
			s := e.specs[pos]
			return similarity(queryLosses, neutralLossPeaks(s.peaks, s.precursorMZ), e.matchTolerance)
		}
	default:
		return nil, fmt.Errorf("%w: %q", engine.ErrUnknownMethod, q.Method)
	}

	results := make([]engine.Candidate, 0, candidates.GetCardinality())
	it := candidates.Iterator()
	for it.HasNext() {
		pos := int(it.Next())
		results = append(results, engine.Candidate{Position: pos, Score: scoreOf(pos)})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Position < results[j].Position
	})

	if q.TopN > 0 && len(results) > q.TopN {
		results = results[:q.TopN]
	}
	return results, nil
}

// collect unions the posting bitmaps of every bin a query peak can touch
// within the match tolerance.
func (e *Engine) collect(bins map[int32]*roaring.Bitmap, peaks []spectrum.Peak, key func(mz float32) float32) *roaring.Bitmap {
	out := roaring.New()
	for _, p := range peaks {
		k := key(p.MZ)
		lo := e.bin(k - e.matchTolerance)
		hi := e.bin(k + e.matchTolerance)
		for b := lo; b <= hi; b++ {
			if bm, ok := bins[b]; ok {
				out.Or(bm)
			}
		}
	}
	return out
}

func (e *Engine) bin(mz float32) int32 {
	return int32(mz / e.binWidth)
}

func addPosting(bins map[int32]*roaring.Bitmap, bin int32, pos uint32) {
	bm, ok := bins[bin]
	if !ok {
		bm = roaring.New()
		bins[bin] = bm
	}
	bm.Add(pos)
}
