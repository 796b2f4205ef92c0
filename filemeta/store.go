package filemeta

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/2bereal-me/MSEntropy/persistence"
)

const (
	logFileName   = "metadata_info.bin"
	indexFileName = "metadata_index.bin"
)

// ErrUnknownScan is returned when no registered file can cover a global scan
// identifier: the index is empty or the identifier is smaller than every
// known file identifier.
var ErrUnknownScan = errors.New("no file covers scan identifier")

// Record is the on-disk file-metadata record. It is encoded as a msgpack map
// so the log stays readable by the other implementations of this format.
type Record struct {
	FileID   uint64 `msgpack:"file_id"`
	FileName string `msgpack:"file_name"`
}

// Resolved is the result of mapping a global scan identifier back to its
// source file.
type Resolved struct {
	FileID    uint64
	FileName  string
	LocalScan uint64
}

type indexEntry struct {
	fileID   uint64
	startLoc uint64
	length   uint32
}

// Store is the append-only file-metadata log plus its sorted lookup index.
// It is single-writer; concurrent positioned reads are safe after Flush.
type Store struct {
	dir     string
	log     *os.File
	entries []indexEntry // sorted ascending by fileID
	loaded  bool
	newID   func() uint64
}

// Option configures a Store.
type Option func(*Store)

// WithIDSource overrides the file-identifier generator. Identifiers must lie
// in [0, 2^63). Used by tests to get deterministic identifiers.
func WithIDSource(fn func() uint64) Option {
	return func(s *Store) {
		s.newID = fn
	}
}

// New creates a Store rooted at dir. Nothing is touched on disk until the
// first Append or Resolve.
func New(dir string, opts ...Option) *Store {
	s := &Store{
		dir:   dir,
		newID: func() uint64 { return uint64(rand.Int63()) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append registers a source file: it assigns a fresh random identifier,
// appends the msgpack record to the log, and inserts the index entry at its
// sorted position. The log is not synced until Flush.
func (s *Store) Append(fileName string) (uint64, error) {
	if err := s.ensureOpen(); err != nil {
		return 0, err
	}

	fileID := s.newID()
	packed, err := msgpack.Marshal(Record{FileID: fileID, FileName: fileName})
	if err != nil {
		return 0, fmt.Errorf("encode metadata record: %w", err)
	}

	startLoc, err := s.log.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := s.log.Write(packed); err != nil {
		return 0, fmt.Errorf("append metadata record: %w", err)
	}

	entry := indexEntry{fileID: fileID, startLoc: uint64(startLoc), length: uint32(len(packed))}
	pos := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].fileID >= fileID })
	s.entries = slices.Insert(s.entries, pos, entry)

	return fileID, nil
}

// Resolve maps a global scan identifier to its source file: rightmost index
// entry with fileID <= globalID, positioned read of the record, local scan is
// the difference.
func (s *Store) Resolve(globalID uint64) (Resolved, error) {
	if err := s.ensureOpen(); err != nil {
		return Resolved{}, err
	}

	pos := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].fileID > globalID }) - 1
	if pos < 0 {
		return Resolved{}, fmt.Errorf("%w: %d", ErrUnknownScan, globalID)
	}
	entry := s.entries[pos]

	buf := make([]byte, entry.length)
	if _, err := s.log.ReadAt(buf, int64(entry.startLoc)); err != nil {
		return Resolved{}, fmt.Errorf("read metadata record at %d: %w", entry.startLoc, err)
	}

	var rec Record
	if err := msgpack.Unmarshal(buf, &rec); err != nil {
		return Resolved{}, fmt.Errorf("decode metadata record at %d: %w", entry.startLoc, err)
	}

	return Resolved{
		FileID:    rec.FileID,
		FileName:  rec.FileName,
		LocalScan: globalID - rec.FileID,
	}, nil
}

// Len returns the number of registered files.
func (s *Store) Len() int {
	if err := s.ensureOpen(); err != nil {
		return 0
	}
	return len(s.entries)
}

// Flush syncs the record log and then persists the index. Index durability
// depends on log durability, so the order is fixed.
func (s *Store) Flush() error {
	if !s.loaded {
		return nil
	}
	if s.log != nil {
		if err := s.log.Sync(); err != nil {
			return fmt.Errorf("sync metadata log: %w", err)
		}
	}
	return s.saveIndex()
}

// Close flushes and releases the log handle. The Store can be reused; the
// next operation reopens lazily.
func (s *Store) Close() error {
	if !s.loaded {
		return nil
	}
	if err := s.Flush(); err != nil {
		return err
	}
	if s.log != nil {
		if err := s.log.Close(); err != nil {
			return err
		}
		s.log = nil
	}
	s.loaded = false
	s.entries = nil
	return nil
}

func (s *Store) ensureOpen() error {
	if s.loaded {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	log, err := os.OpenFile(filepath.Join(s.dir, logFileName), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	s.log = log

	if err := s.loadIndex(); err != nil {
		_ = log.Close()
		s.log = nil
		return err
	}
	s.loaded = true
	return nil
}

func (s *Store) loadIndex() error {
	path := filepath.Join(s.dir, indexFileName)
	err := persistence.LoadFromFile(path, func(r io.Reader) error {
		br := persistence.NewBinaryReader(r)
		header, err := br.ReadHeader(persistence.KindMetadataIndex)
		if err != nil {
			return err
		}
		count := int(header.Count)
		fileIDs, err := br.ReadUint64Slice(count)
		if err != nil {
			return err
		}
		startLocs, err := br.ReadUint64Slice(count)
		if err != nil {
			return err
		}
		lengths, err := br.ReadUint32Slice(count)
		if err != nil {
			return err
		}
		s.entries = make([]indexEntry, count)
		for i := range s.entries {
			s.entries[i] = indexEntry{fileID: fileIDs[i], startLoc: startLocs[i], length: lengths[i]}
		}
		return nil
	})
	if os.IsNotExist(err) {
		s.entries = nil
		return nil
	}
	return err
}

func (s *Store) saveIndex() error {
	fileIDs := make([]uint64, len(s.entries))
	startLocs := make([]uint64, len(s.entries))
	lengths := make([]uint32, len(s.entries))
	for i, e := range s.entries {
		fileIDs[i] = e.fileID
		startLocs[i] = e.startLoc
		lengths[i] = e.length
	}

	path := filepath.Join(s.dir, indexFileName)
	return persistence.SaveToFile(path, func(w io.Writer) error {
		bw := persistence.NewBinaryWriter(w)
		if err := bw.WriteHeader(&persistence.FileHeader{
			Kind:  persistence.KindMetadataIndex,
			Count: uint64(len(s.entries)),
		}); err != nil {
			return err
		}
		if err := bw.WriteUint64Slice(fileIDs); err != nil {
			return err
		}
		if err := bw.WriteUint64Slice(startLocs); err != nil {
			return err
		}
		return bw.WriteUint32Slice(lengths)
	})
}
