package filemeta

import (
	"fmt"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// idQueue returns a deterministic identifier source handing out the given
// values in order.
func idQueue(ids ...uint64) func() uint64 {
	i := 0
	return func() uint64 {
		id := ids[i]
		i++
		return id
	}
}

func TestAppend_KeepsIndexSorted(t *testing.T) {
	s := New(t.TempDir(), WithIDSource(idQueue(5000, 100, 90000, 2000)))
	defer s.Close()

	names := []string{"run_a.mzML", "run_b.mzML", "run_c.mzML", "run_d.mzML"}
	for _, name := range names {
		_, err := s.Append(name)
		require.NoError(t, err)
	}

	got := make([]uint64, len(s.entries))
	for i, e := range s.entries {
		got[i] = e.fileID
	}
	assert.True(t, sort.SliceIsSorted(got, func(i, j int) bool { return got[i] < got[j] }))
	assert.Equal(t, []uint64{100, 2000, 5000, 90000}, got)
}

func TestResolve_ReturnsOwningFile(t *testing.T) {
	s := New(t.TempDir(), WithIDSource(idQueue(1_000_000, 5_000_000)))
	defer s.Close()

	idA, err := s.Append("a.mzML")
	require.NoError(t, err)
	idB, err := s.Append("b.mzML")
	require.NoError(t, err)

	res, err := s.Resolve(idA + 42)
	require.NoError(t, err)
	assert.Equal(t, "a.mzML", res.FileName)
	assert.Equal(t, idA, res.FileID)
	assert.Equal(t, uint64(42), res.LocalScan)

	res, err = s.Resolve(idB + 7)
	require.NoError(t, err)
	assert.Equal(t, "b.mzML", res.FileName)
	assert.Equal(t, uint64(7), res.LocalScan)

	// Exactly the file identifier resolves to local scan 0.
	res, err = s.Resolve(idB)
	require.NoError(t, err)
	assert.Equal(t, "b.mzML", res.FileName)
	assert.Zero(t, res.LocalScan)
}

func TestResolve_UnknownScan(t *testing.T) {
	s := New(t.TempDir(), WithIDSource(idQueue(1_000_000)))
	defer s.Close()

	// Empty index.
	_, err := s.Resolve(999)
	assert.ErrorIs(t, err, ErrUnknownScan)

	_, err = s.Append("a.mzML")
	require.NoError(t, err)

	// Below every known identifier.
	_, err = s.Resolve(999_999)
	assert.ErrorIs(t, err, ErrUnknownScan)
}

func TestFlushReload_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	s := New(dir, WithIDSource(idQueue(7000, 300)))
	idA, err := s.Append("first.mzML")
	require.NoError(t, err)
	idB, err := s.Append("second.mzML")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened := New(dir)
	defer reopened.Close()

	res, err := reopened.Resolve(idA + 3)
	require.NoError(t, err)
	assert.Equal(t, "first.mzML", res.FileName)
	assert.Equal(t, uint64(3), res.LocalScan)

	res, err = reopened.Resolve(idB + 12)
	require.NoError(t, err)
	assert.Equal(t, "second.mzML", res.FileName)
	assert.Equal(t, uint64(12), res.LocalScan)

	assert.Equal(t, 2, reopened.Len())
}

func TestAppend_ManyFilesResolveEverywhere(t *testing.T) {
	s := New(t.TempDir())
	defer s.Close()

	ids := make(map[uint64]string)
	for i := 0; i < 64; i++ {
		name := filepath.Join("runs", fmt.Sprintf("sample_%02d.mzML", i))
		id, err := s.Append(name)
		require.NoError(t, err)
		ids[id] = name
	}

	// With 63-bit random identifiers and tiny scan numbers, id+1 lands in
	// the owning file's range.
	for id, name := range ids {
		res, err := s.Resolve(id + 1)
		require.NoError(t, err)
		assert.Equal(t, name, res.FileName)
		assert.Equal(t, id, res.FileID)
		assert.Equal(t, uint64(1), res.LocalScan)
	}
}
