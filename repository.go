package msentropy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/2bereal-me/MSEntropy/engine"
	"github.com/2bereal-me/MSEntropy/filemeta"
	"github.com/2bereal-me/MSEntropy/shard"
	"github.com/2bereal-me/MSEntropy/spectrum"
)

// Repository is the top-level orchestrator: it owns the file-metadata store
// and one lazily created shard per observed charge state.
//
// Single-writer: no method is safe for concurrent invocation against the
// same root directory.
type Repository struct {
	root   string
	opts   options
	logger *Logger
	meta   *filemeta.Store
	shards map[int16]*shard.Store
}

// SearchRequest describes one top-N similarity query.
type SearchRequest struct {
	// Charge selects the shard.
	Charge int16
	// Peaks is the query peak list.
	Peaks []spectrum.Peak
	// PrecursorMZ of the query spectrum; negative means unknown. Required
	// for neutral-loss searches.
	PrecursorMZ float32
	// Method defaults to engine.MethodOpen.
	Method engine.Method
	// TopN caps the result count; 0 means the default of 1000.
	TopN int
	// IncludeSpectrum attaches each match's full stored record.
	IncludeSpectrum bool
}

// DefaultTopN is the result cap applied when SearchRequest.TopN is zero.
const DefaultTopN = 1000

// Match is one search result. Scan is the scan number local to FileName,
// recovered from the stored global identifier. Position is the shard-local
// index usable with GetSpectrum. When requested, Spectrum holds the full
// stored record; its Scan field keeps the global identifier.
type Match struct {
	FileName   string
	Scan       uint64
	Similarity float32
	Position   int
	Spectrum   *spectrum.Spectrum
}

// Open creates or reopens a repository rooted at root.
func Open(root string, opts ...Option) (*Repository, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}

	var metaOpts []filemeta.Option
	if o.fileIDSource != nil {
		metaOpts = append(metaOpts, filemeta.WithIDSource(o.fileIDSource))
	}

	return &Repository{
		root:   root,
		opts:   o,
		logger: o.logger,
		meta:   filemeta.New(filepath.Join(root, "metadata"), metaOpts...),
		shards: make(map[int16]*shard.Store),
	}, nil
}

// AddSourceFile registers a source file and ingests its fragmentation
// spectra: precursor-only records (MS level 1) are discarded, scan numbers
// are rewritten to global identifiers, peaks are cleaned when enabled, and
// each charge group is routed to its shard.
func (r *Repository) AddSourceFile(ctx context.Context, fileName string, src Source) error {
	fileID, err := r.meta.Append(fileName)
	if err != nil {
		r.logger.LogIngest(ctx, fileName, 0, 0, err)
		return err
	}

	groups := make(map[int16][]*spectrum.Spectrum)
	ingested, skipped := 0, 0
	for {
		raw, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			r.logger.LogIngest(ctx, fileName, ingested, skipped, err)
			return fmt.Errorf("read source %s: %w", fileName, err)
		}
		if raw.MSLevel == 1 {
			skipped++
			continue
		}

		s := &spectrum.Spectrum{
			Scan:        raw.ScanNumber + fileID,
			PrecursorMZ: raw.PrecursorMZ,
			RT:          raw.RT,
			Charge:      raw.Charge,
			Peaks:       raw.Peaks,
		}
		if r.opts.cleanEnabled {
			s.Peaks = spectrum.CleanPeaks(s.Peaks, r.cleanOptions(s.PrecursorMZ))
			if len(s.Peaks) == 0 {
				skipped++
				continue
			}
		}
		groups[s.Charge] = append(groups[s.Charge], s)
		ingested++
	}

	for charge, batch := range groups {
		sh, err := r.getShard(charge)
		if err != nil {
			r.logger.LogIngest(ctx, fileName, ingested, skipped, err)
			return err
		}
		if err := sh.Ingest(ctx, batch, r.opts.insertMode, r.opts.neutralLoss); err != nil {
			r.logger.LogIngest(ctx, fileName, ingested, skipped, err)
			return fmt.Errorf("ingest charge %d: %w", charge, err)
		}
	}

	r.logger.LogIngest(ctx, fileName, ingested, skipped, nil)
	return nil
}

func (r *Repository) cleanOptions(precursorMZ float32) spectrum.CleanOptions {
	maxMZ := float32(-1)
	if r.opts.precursorRemoval >= 0 {
		maxMZ = precursorMZ - r.opts.precursorRemoval
	}
	return spectrum.CleanOptions{
		MinMZ:          -1,
		MaxMZ:          maxMZ,
		NoiseThreshold: r.opts.noiseThreshold,
		MinPeakGap:     r.opts.minPeakGap,
		MaxPeaks:       r.opts.maxPeaks,
		Normalize:      true,
	}
}

// BuildIndex drains every loaded shard's cache into its engine, as an
// explicit flush point after bulk ingestion. Shards own disjoint files, so
// they build concurrently.
func (r *Repository) BuildIndex(ctx context.Context) error {
	var g errgroup.Group
	for _, sh := range r.shards {
		sh := sh
		g.Go(func() error {
			return sh.BuildIndex(ctx, r.opts.insertMode, r.opts.neutralLoss)
		})
	}
	err := g.Wait()
	r.logger.LogBuild(ctx, len(r.shards), err)
	return err
}

// Search queries the requested charge shard and resolves every candidate
// back to its source file and local scan number.
func (r *Repository) Search(ctx context.Context, req SearchRequest) ([]Match, error) {
	topn := req.TopN
	if topn <= 0 {
		topn = DefaultTopN
	}

	sh, err := r.openShard(req.Charge)
	if err != nil {
		r.logger.LogSearch(ctx, req.Charge, topn, 0, err)
		return nil, err
	}

	candidates, err := sh.Query(ctx, engine.Query{
		Peaks:       req.Peaks,
		PrecursorMZ: req.PrecursorMZ,
		Method:      req.Method,
		TopN:        topn,
	})
	if err != nil {
		r.logger.LogSearch(ctx, req.Charge, topn, 0, err)
		return nil, err
	}

	positions := make([]int, len(candidates))
	for i, c := range candidates {
		positions[i] = c.Position
	}
	ids, err := sh.Identifiers(positions)
	if err != nil {
		r.logger.LogSearch(ctx, req.Charge, topn, 0, err)
		return nil, err
	}

	matches := make([]Match, len(candidates))
	for i, c := range candidates {
		resolved, err := r.meta.Resolve(ids[i])
		if err != nil {
			r.logger.LogSearch(ctx, req.Charge, topn, 0, err)
			return nil, fmt.Errorf("resolve identifier %d: %w", ids[i], err)
		}
		matches[i] = Match{
			FileName:   resolved.FileName,
			Scan:       resolved.LocalScan,
			Similarity: c.Score,
			Position:   c.Position,
		}
		if req.IncludeSpectrum {
			stored, err := sh.SpectrumAt(c.Position)
			if err != nil {
				r.logger.LogSearch(ctx, req.Charge, topn, 0, err)
				return nil, err
			}
			matches[i].Spectrum = stored
		}
	}

	r.logger.LogSearch(ctx, req.Charge, topn, len(matches), nil)
	return matches, nil
}

// GetSpectrum returns the stored record at a shard-local position.
func (r *Repository) GetSpectrum(charge int16, position int) (*spectrum.Spectrum, error) {
	sh, err := r.openShard(charge)
	if err != nil {
		return nil, err
	}
	return sh.SpectrumAt(position)
}

// Persist flushes the file-metadata store, then persists every loaded shard.
// Metadata durability comes first; shards persist concurrently after it.
func (r *Repository) Persist() error {
	ctx := context.Background()
	if err := r.meta.Flush(); err != nil {
		r.logger.LogPersist(ctx, len(r.shards), err)
		return err
	}

	var g errgroup.Group
	for _, sh := range r.shards {
		g.Go(sh.Persist)
	}
	err := g.Wait()
	r.logger.LogPersist(ctx, len(r.shards), err)
	return err
}

// Close persists and releases every resource. The Repository must not be
// used afterwards.
func (r *Repository) Close() error {
	errs := []error{r.Persist(), r.meta.Close()}
	for _, sh := range r.shards {
		errs = append(errs, sh.Close())
	}
	r.shards = make(map[int16]*shard.Store)
	return errors.Join(errs...)
}

// getShard returns the shard for a charge, creating its directory on first
// appearance.
func (r *Repository) getShard(charge int16) (*shard.Store, error) {
	if sh, ok := r.shards[charge]; ok {
		return sh, nil
	}
	dir := r.chargeDir(charge)
	sh, err := shard.Open(dir, r.opts.engineFactory(dir), shard.WithBuildThreshold(r.opts.buildThreshold))
	if err != nil {
		return nil, err
	}
	r.shards[charge] = sh
	return sh, nil
}

// openShard is the query-side variant: the charge must already exist, either
// loaded in this session or as a directory from a previous one.
func (r *Repository) openShard(charge int16) (*shard.Store, error) {
	if sh, ok := r.shards[charge]; ok {
		return sh, nil
	}

	dir := r.chargeDir(charge)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, &ErrChargeNotFound{Charge: charge}
		}
		return nil, err
	}

	sh, err := shard.Open(dir, r.opts.engineFactory(dir), shard.WithBuildThreshold(r.opts.buildThreshold))
	if err != nil {
		return nil, err
	}
	if err := sh.Load(); err != nil {
		_ = sh.Close()
		return nil, fmt.Errorf("load charge %d shard: %w", charge, err)
	}
	r.shards[charge] = sh
	return sh, nil
}

func (r *Repository) chargeDir(charge int16) string {
	return filepath.Join(r.root, fmt.Sprintf("charge_%d", charge))
}
