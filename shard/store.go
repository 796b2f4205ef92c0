package shard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/2bereal-me/MSEntropy/engine"
	"github.com/2bereal-me/MSEntropy/internal/mmap"
	"github.com/2bereal-me/MSEntropy/persistence"
	"github.com/2bereal-me/MSEntropy/spectrum"
)

const (
	specLogName    = "ms2_data.bin"
	idArrayName    = "spec_id_array.bin"
	locArrayName   = "loc_array.bin"
	groupStartName = "group_start.bin"

	// DefaultBuildThreshold is the cache size at which ingestion triggers
	// an index build cycle.
	DefaultBuildThreshold = 10000
)

// ErrPositionOutOfRange is returned for a positional lookup outside the
// shard's arrays.
var ErrPositionOutOfRange = errors.New("position out of range")

// InsertMode selects the index build strategy for ingestion.
type InsertMode uint8

const (
	// FastUpdate appends to the engine's index without resorting,
	// favoring ingestion throughput.
	FastUpdate InsertMode = iota
	// FastSearch resorts the index after folding the batch in, favoring
	// query latency.
	FastSearch
)

// Store is the storage unit for one charge state. Single-writer; positional
// reads through the mapped views are safe once Persist has run.
type Store struct {
	dir       string
	engine    engine.Engine
	threshold int

	idLog  *os.File
	locLog *os.File
	count  int
	cache  []*spectrum.Spectrum

	loaded  bool
	idMap   *mmap.Mapping
	locMap  *mmap.Mapping
	ids     []uint64
	locs    []uint64
	specLog *os.File
}

// Option configures a Store.
type Option func(*Store)

// WithBuildThreshold sets the cache size that triggers a build cycle.
func WithBuildThreshold(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.threshold = n
		}
	}
}

// Open creates or reopens a shard directory. The identifier and offset
// arrays are opened for appending; the count of stored spectra is recovered
// from the identifier array's size.
func Open(dir string, eng engine.Engine, opts ...Option) (*Store, error) {
	s := &Store{
		dir:       dir,
		engine:    eng,
		threshold: DefaultBuildThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var err error
	if s.idLog, err = openAppend(filepath.Join(dir, idArrayName)); err != nil {
		return nil, err
	}
	if s.locLog, err = openAppend(filepath.Join(dir, locArrayName)); err != nil {
		_ = s.idLog.Close()
		return nil, err
	}

	fi, err := s.idLog.Stat()
	if err != nil {
		s.closeHandles()
		return nil, err
	}
	s.count = int(fi.Size() / 8)

	return s, nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// Count returns the number of spectra appended to this shard.
func (s *Store) Count() int {
	return s.count
}

// CacheLen returns the number of spectra awaiting an index build.
func (s *Store) CacheLen() int {
	return len(s.cache)
}

// Engine exposes the shard's similarity engine.
func (s *Store) Engine() engine.Engine {
	return s.engine
}

// Ingest appends a batch to the spectrum log and parallel arrays, then adds
// it to the cache. While the cache holds at least the build threshold, a
// threshold-sized build cycle runs, so one large batch may trigger several
// consecutive builds.
func (s *Store) Ingest(ctx context.Context, batch []*spectrum.Spectrum, mode InsertMode, neutralLoss bool) error {
	if len(batch) == 0 {
		return nil
	}

	ids := make([]uint64, len(batch))
	locs := make([]uint64, len(batch))

	specLog, err := openAppend(filepath.Join(s.dir, specLogName))
	if err != nil {
		return err
	}
	offset, err := specLog.Seek(0, io.SeekEnd)
	if err != nil {
		_ = specLog.Close()
		return err
	}
	for i, spec := range batch {
		data, err := spectrum.Encode(spec)
		if err != nil {
			_ = specLog.Close()
			return fmt.Errorf("encode scan %d: %w", spec.Scan, err)
		}
		locs[i] = uint64(offset)
		if _, err := specLog.Write(data); err != nil {
			_ = specLog.Close()
			return fmt.Errorf("append scan %d: %w", spec.Scan, err)
		}
		offset += int64(len(data))
		ids[i] = spec.Scan
	}
	if err := specLog.Close(); err != nil {
		return err
	}

	if err := persistence.NewBinaryWriter(s.idLog).WriteUint64Slice(ids); err != nil {
		return fmt.Errorf("append identifier array: %w", err)
	}
	if err := persistence.NewBinaryWriter(s.locLog).WriteUint64Slice(locs); err != nil {
		return fmt.Errorf("append offset array: %w", err)
	}
	s.count += len(batch)

	// The mapped views no longer cover the grown arrays.
	s.unload()

	s.cache = append(s.cache, batch...)
	for len(s.cache) >= s.threshold {
		if err := s.buildCycle(ctx, mode, neutralLoss); err != nil {
			return err
		}
	}
	return nil
}

// BuildIndex drains the whole cache into the engine in threshold-capped
// cycles. Used as an explicit flush point after bulk ingestion.
func (s *Store) BuildIndex(ctx context.Context, mode InsertMode, neutralLoss bool) error {
	for len(s.cache) > 0 {
		if err := s.buildCycle(ctx, mode, neutralLoss); err != nil {
			return err
		}
	}
	return nil
}

// buildCycle hands at most one threshold's worth of cached spectra to the
// engine and drops them from the cache.
func (s *Store) buildCycle(ctx context.Context, mode InsertMode, neutralLoss bool) error {
	n := len(s.cache)
	if n == 0 {
		return nil
	}
	if n > s.threshold {
		n = s.threshold
	}

	if err := s.engine.Build(ctx, s.cache[:n], mode == FastSearch, neutralLoss); err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	s.cache = s.cache[n:]
	return nil
}

// SpectrumAt decodes the stored record at the given position.
func (s *Store) SpectrumAt(pos int) (*spectrum.Spectrum, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	if pos < 0 || pos >= len(s.locs) {
		return nil, fmt.Errorf("%w: %d of %d", ErrPositionOutOfRange, pos, len(s.locs))
	}

	fi, err := s.specLog.Stat()
	if err != nil {
		return nil, err
	}
	loc := int64(s.locs[pos])
	sr := spectrum.NewStreamReader(io.NewSectionReader(s.specLog, loc, fi.Size()-loc), -1)
	spec, err := sr.Next()
	if err != nil {
		return nil, fmt.Errorf("decode spectrum at position %d (offset %d): %w", pos, loc, err)
	}
	return spec, nil
}

// IdentifierAt returns the global scan identifier at the given position.
func (s *Store) IdentifierAt(pos int) (uint64, error) {
	if err := s.ensureLoaded(); err != nil {
		return 0, err
	}
	if pos < 0 || pos >= len(s.ids) {
		return 0, fmt.Errorf("%w: %d of %d", ErrPositionOutOfRange, pos, len(s.ids))
	}
	return s.ids[pos], nil
}

// Identifiers is the bulk form of IdentifierAt.
func (s *Store) Identifiers(positions []int) ([]uint64, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	out := make([]uint64, len(positions))
	for i, pos := range positions {
		if pos < 0 || pos >= len(s.ids) {
			return nil, fmt.Errorf("%w: %d of %d", ErrPositionOutOfRange, pos, len(s.ids))
		}
		out[i] = s.ids[pos]
	}
	return out, nil
}

// Query passes through to the similarity engine.
func (s *Store) Query(ctx context.Context, q engine.Query) ([]engine.Candidate, error) {
	return s.engine.Query(ctx, q)
}

// Persist closes and reopens the append handles so no writer state survives
// a restart boundary, persists the engine's index, and writes the engine's
// group-boundary array.
func (s *Store) Persist() error {
	for _, reopen := range []struct {
		f    **os.File
		name string
	}{
		{&s.idLog, idArrayName},
		{&s.locLog, locArrayName},
	} {
		if err := (*reopen.f).Close(); err != nil {
			return err
		}
		f, err := openAppend(filepath.Join(s.dir, reopen.name))
		if err != nil {
			return err
		}
		*reopen.f = f
	}

	if err := s.engine.Persist(); err != nil {
		return fmt.Errorf("persist engine index: %w", err)
	}

	starts := s.engine.GroupStarts()
	return persistence.SaveToFile(filepath.Join(s.dir, groupStartName), func(w io.Writer) error {
		bw := persistence.NewBinaryWriter(w)
		if err := bw.WriteHeader(&persistence.FileHeader{
			Kind:  persistence.KindGroupStarts,
			Count: uint64(len(starts)),
		}); err != nil {
			return err
		}
		return bw.WriteUint64Slice(starts)
	})
}

// Load reopens a previously persisted shard: it maps the read views,
// restores the group-boundary array, and loads the engine's persisted index.
// Reads during an active ingestion session map views lazily without touching
// the engine.
func (s *Store) Load() error {
	if err := s.mapViews(); err != nil {
		return err
	}
	if err := s.loadGroupStarts(); err != nil {
		s.unload()
		return err
	}
	if err := s.engine.Load(); err != nil {
		s.unload()
		return fmt.Errorf("load engine index: %w", err)
	}
	return nil
}

// mapViews maps the identifier and offset arrays read-only and opens the
// spectrum log for positioned reads.
func (s *Store) mapViews() error {
	s.unload()

	idMap, err := mmap.Open(filepath.Join(s.dir, idArrayName))
	if err != nil {
		return err
	}
	ids, err := persistence.Uint64View(idMap.Bytes())
	if err != nil {
		_ = idMap.Close()
		return fmt.Errorf("identifier array: %w", err)
	}

	locMap, err := mmap.Open(filepath.Join(s.dir, locArrayName))
	if err != nil {
		_ = idMap.Close()
		return err
	}
	locs, err := persistence.Uint64View(locMap.Bytes())
	if err != nil {
		_ = idMap.Close()
		_ = locMap.Close()
		return fmt.Errorf("offset array: %w", err)
	}

	specLog, err := os.Open(filepath.Join(s.dir, specLogName))
	if err != nil {
		_ = idMap.Close()
		_ = locMap.Close()
		return err
	}

	s.idMap, s.ids = idMap, ids
	s.locMap, s.locs = locMap, locs
	s.specLog = specLog
	s.loaded = true
	return nil
}

func (s *Store) loadGroupStarts() error {
	err := persistence.LoadFromFile(filepath.Join(s.dir, groupStartName), func(r io.Reader) error {
		br := persistence.NewBinaryReader(r)
		header, err := br.ReadHeader(persistence.KindGroupStarts)
		if err != nil {
			return err
		}
		starts, err := br.ReadUint64Slice(int(header.Count))
		if err != nil {
			return err
		}
		s.engine.SetGroupStarts(starts)
		return nil
	})
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *Store) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	return s.mapViews()
}

// unload drops the mapped read views. The next accessor reloads.
func (s *Store) unload() {
	if s.idMap != nil {
		_ = s.idMap.Close()
		s.idMap = nil
	}
	if s.locMap != nil {
		_ = s.locMap.Close()
		s.locMap = nil
	}
	if s.specLog != nil {
		_ = s.specLog.Close()
		s.specLog = nil
	}
	s.ids, s.locs = nil, nil
	s.loaded = false
}

func (s *Store) closeHandles() {
	if s.idLog != nil {
		_ = s.idLog.Close()
		s.idLog = nil
	}
	if s.locLog != nil {
		_ = s.locLog.Close()
		s.locLog = nil
	}
}

// Close releases all file handles and mapped views.
func (s *Store) Close() error {
	s.unload()
	var errs []error
	if s.idLog != nil {
		errs = append(errs, s.idLog.Close())
		s.idLog = nil
	}
	if s.locLog != nil {
		errs = append(errs, s.locLog.Close())
		s.locLog = nil
	}
	return errors.Join(errs...)
}
