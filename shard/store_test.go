package shard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2bereal-me/MSEntropy/engine"
	"github.com/2bereal-me/MSEntropy/engine/entropy"
	"github.com/2bereal-me/MSEntropy/spectrum"
)

// fakeEngine records Build invocations and serves canned query results.
type fakeEngine struct {
	builds      []int // batch sizes, in order
	resorts     []bool
	neutralLoss []bool
	starts      []uint64
	persisted   int
	loaded      int
	results     []engine.Candidate
}

func (f *fakeEngine) Build(_ context.Context, batch []*spectrum.Spectrum, resort, neutralLoss bool) error {
	f.builds = append(f.builds, len(batch))
	f.resorts = append(f.resorts, resort)
	f.neutralLoss = append(f.neutralLoss, neutralLoss)
	return nil
}

func (f *fakeEngine) Query(context.Context, engine.Query) ([]engine.Candidate, error) {
	return f.results, nil
}

func (f *fakeEngine) Persist() error { f.persisted++; return nil }
func (f *fakeEngine) Load() error    { f.loaded++; return nil }

func (f *fakeEngine) GroupStarts() []uint64     { return f.starts }
func (f *fakeEngine) SetGroupStarts(s []uint64) { f.starts = s }

func makeBatch(n int, firstScan uint64) []*spectrum.Spectrum {
	batch := make([]*spectrum.Spectrum, n)
	for i := range batch {
		batch[i] = &spectrum.Spectrum{
			Scan:        firstScan + uint64(i),
			PrecursorMZ: float32(300 + i),
			RT:          spectrum.RTUnknown,
			Charge:      1,
			Peaks: []spectrum.Peak{
				{MZ: float32(100 + i), Intensity: 1},
				{MZ: float32(150 + i), Intensity: 0.5},
			},
		}
	}
	return batch
}

func TestIngest_ThresholdBuildCycles(t *testing.T) {
	ctx := context.Background()
	fake := &fakeEngine{}

	s, err := Open(t.TempDir(), fake, WithBuildThreshold(4))
	require.NoError(t, err)
	defer s.Close()

	// k=3 cycles of the threshold plus r=2 left over.
	require.NoError(t, s.Ingest(ctx, makeBatch(14, 1000), FastUpdate, true))

	assert.Equal(t, []int{4, 4, 4}, fake.builds)
	assert.Equal(t, 2, s.CacheLen())
	assert.Equal(t, 14, s.Count())
	assert.Equal(t, []bool{false, false, false}, fake.resorts)
	assert.Equal(t, []bool{true, true, true}, fake.neutralLoss)
}

func TestIngest_BelowThresholdDoesNotBuild(t *testing.T) {
	fake := &fakeEngine{}

	s, err := Open(t.TempDir(), fake, WithBuildThreshold(10))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Ingest(context.Background(), makeBatch(3, 1), FastUpdate, false))
	assert.Empty(t, fake.builds)
	assert.Equal(t, 3, s.CacheLen())
}

func TestBuildIndex_DrainsEverything(t *testing.T) {
	ctx := context.Background()
	fake := &fakeEngine{}

	s, err := Open(t.TempDir(), fake, WithBuildThreshold(4))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Ingest(ctx, makeBatch(6, 1), FastSearch, false))
	require.Equal(t, 2, s.CacheLen())

	require.NoError(t, s.BuildIndex(ctx, FastSearch, false))
	assert.Zero(t, s.CacheLen())
	assert.Equal(t, []int{4, 2}, fake.builds)
	assert.Equal(t, []bool{true, true}, fake.resorts)
}

func TestSpectrumAt_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir, &fakeEngine{}, WithBuildThreshold(100))
	require.NoError(t, err)
	defer s.Close()

	batch := makeBatch(5, 42)
	require.NoError(t, s.Ingest(ctx, batch, FastUpdate, false))

	for i, want := range batch {
		got, err := s.SpectrumAt(i)
		require.NoError(t, err)
		assert.Equal(t, want, got, "position %d", i)
	}

	_, err = s.SpectrumAt(5)
	assert.ErrorIs(t, err, ErrPositionOutOfRange)
	_, err = s.SpectrumAt(-1)
	assert.ErrorIs(t, err, ErrPositionOutOfRange)
}

func TestIdentifiers_ScalarAndBulk(t *testing.T) {
	ctx := context.Background()

	s, err := Open(t.TempDir(), &fakeEngine{}, WithBuildThreshold(100))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Ingest(ctx, makeBatch(4, 9000), FastUpdate, false))

	id, err := s.IdentifierAt(2)
	require.NoError(t, err)
	assert.Equal(t, uint64(9002), id)

	ids, err := s.Identifiers([]int{3, 0})
	require.NoError(t, err)
	assert.Equal(t, []uint64{9003, 9000}, ids)

	_, err = s.IdentifierAt(4)
	assert.ErrorIs(t, err, ErrPositionOutOfRange)
}

func TestPersist_WritesGroupStartsAndReopensHandles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fake := &fakeEngine{starts: []uint64{0, 4}}

	s, err := Open(dir, fake, WithBuildThreshold(4))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Ingest(ctx, makeBatch(8, 1), FastUpdate, false))
	require.NoError(t, s.Persist())
	assert.Equal(t, 1, fake.persisted)

	_, err = os.Stat(filepath.Join(dir, groupStartName))
	require.NoError(t, err)

	// Appending still works after the handle cycle.
	require.NoError(t, s.Ingest(ctx, makeBatch(2, 100), FastUpdate, false))
	assert.Equal(t, 10, s.Count())
}

func TestLoad_RestoresGroupStarts(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	fake := &fakeEngine{starts: []uint64{0, 4, 8}}
	s, err := Open(dir, fake, WithBuildThreshold(4))
	require.NoError(t, err)
	require.NoError(t, s.Ingest(ctx, makeBatch(8, 1), FastUpdate, false))
	require.NoError(t, s.Persist())
	require.NoError(t, s.Close())

	reFake := &fakeEngine{}
	reopened, err := Open(dir, reFake, WithBuildThreshold(4))
	require.NoError(t, err)
	defer reopened.Close()

	require.NoError(t, reopened.Load())
	assert.Equal(t, []uint64{0, 4, 8}, reFake.starts)
	assert.Equal(t, 1, reFake.loaded)
	assert.Equal(t, 8, reopened.Count())
}

func TestCount_RecoveredFromArraySize(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir, &fakeEngine{}, WithBuildThreshold(100))
	require.NoError(t, err)
	require.NoError(t, s.Ingest(ctx, makeBatch(7, 1), FastUpdate, false))
	require.NoError(t, s.Close())

	reopened, err := Open(dir, &fakeEngine{})
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 7, reopened.Count())
}

func TestShard_WithEntropyEngine_EndToEnd(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir, entropy.New(dir), WithBuildThreshold(2))
	require.NoError(t, err)
	defer s.Close()

	batch := makeBatch(4, 500)
	require.NoError(t, s.Ingest(ctx, batch, FastSearch, true))
	require.NoError(t, s.BuildIndex(ctx, FastSearch, true))
	require.NoError(t, s.Persist())

	results, err := s.Query(ctx, engine.Query{
		Peaks:       batch[1].Peaks,
		PrecursorMZ: batch[1].PrecursorMZ,
		Method:      engine.MethodOpen,
		TopN:        4,
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, 1, results[0].Position)

	got, err := s.SpectrumAt(results[0].Position)
	require.NoError(t, err)
	assert.Equal(t, batch[1], got)

	id, err := s.IdentifierAt(results[0].Position)
	require.NoError(t, err)
	assert.Equal(t, uint64(501), id)
}

func TestOpen_IndependentShardDirs(t *testing.T) {
	root := t.TempDir()
	for _, charge := range []int{1, -1} {
		dir := filepath.Join(root, fmt.Sprintf("charge_%d", charge))
		s, err := Open(dir, &fakeEngine{})
		require.NoError(t, err)
		require.NoError(t, s.Close())

		_, err = os.Stat(filepath.Join(dir, idArrayName))
		assert.NoError(t, err)
	}
}
