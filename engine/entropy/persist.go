package entropy

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/2bereal-me/MSEntropy/persistence"
	"github.com/2bereal-me/MSEntropy/spectrum"
)

const snapshotFileName = "entropy_index.bin"

// Persist writes the index snapshot: an uncompressed sidecar header followed
// by a zstd-compressed body with the normalized spectra and both posting-list
// maps. The shard's spectrum log is the source of truth; this snapshot only
// spares a full rebuild on load.
func (e *Engine) Persist() error {
	path := filepath.Join(e.dir, snapshotFileName)
	return persistence.SaveToFile(path, func(w io.Writer) error {
		bw := persistence.NewBinaryWriter(w)
		if err := bw.WriteHeader(&persistence.FileHeader{
			Kind:  persistence.KindEntropyIndex,
			Count: uint64(len(e.specs)),
		}); err != nil {
			return err
		}

		zw, err := zstd.NewWriter(w)
		if err != nil {
			return err
		}
		if err := e.writeBody(persistence.NewBinaryWriter(zw)); err != nil {
			_ = zw.Close()
			return err
		}
		return zw.Close()
	})
}

// Load restores a persisted snapshot. A missing snapshot loads empty: the
// shard may have ingested without ever persisting an index.
func (e *Engine) Load() error {
	path := filepath.Join(e.dir, snapshotFileName)
	err := persistence.LoadFromFile(path, func(r io.Reader) error {
		br := persistence.NewBinaryReader(r)
		header, err := br.ReadHeader(persistence.KindEntropyIndex)
		if err != nil {
			return err
		}

		zr, err := zstd.NewReader(r)
		if err != nil {
			return err
		}
		defer zr.Close()

		return e.readBody(persistence.NewBinaryReader(zr), int(header.Count))
	})
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (e *Engine) writeBody(bw *persistence.BinaryWriter) error {
	for _, s := range e.specs {
		if err := bw.WriteUint32(math.Float32bits(s.precursorMZ)); err != nil {
			return err
		}
		if err := bw.WriteUint32(uint32(len(s.peaks))); err != nil {
			return err
		}
		flat := make([]float32, 0, len(s.peaks)*2)
		for _, p := range s.peaks {
			flat = append(flat, p.MZ, p.Intensity)
		}
		if err := bw.WriteFloat32Slice(flat); err != nil {
			return err
		}
	}

	if err := writeBins(bw, e.fragBins); err != nil {
		return err
	}
	return writeBins(bw, e.nlBins)
}

func (e *Engine) readBody(br *persistence.BinaryReader, count int) error {
	e.specs = make([]indexedSpectrum, count)
	for i := range e.specs {
		bits, err := br.ReadUint32()
		if err != nil {
			return err
		}
		peakCount, err := br.ReadUint32()
		if err != nil {
			return err
		}
		flat, err := br.ReadFloat32Slice(int(peakCount) * 2)
		if err != nil {
			return err
		}
		peaks := make([]spectrum.Peak, peakCount)
		for j := range peaks {
			peaks[j] = spectrum.Peak{MZ: flat[j*2], Intensity: flat[j*2+1]}
		}
		e.specs[i] = indexedSpectrum{precursorMZ: math.Float32frombits(bits), peaks: peaks}
	}

	var err error
	if e.fragBins, err = readBins(br); err != nil {
		return err
	}
	e.nlBins, err = readBins(br)
	return err
}

func writeBins(bw *persistence.BinaryWriter, bins map[int32]*roaring.Bitmap) error {
	if err := bw.WriteUint32(uint32(len(bins))); err != nil {
		return err
	}
	for bin, bm := range bins {
		if err := bw.WriteUint32(uint32(bin)); err != nil {
			return err
		}
		data, err := bm.ToBytes()
		if err != nil {
			return fmt.Errorf("serialize posting bitmap for bin %d: %w", bin, err)
		}
		if err := bw.WriteUint32(uint32(len(data))); err != nil {
			return err
		}
		if err := bw.WriteBytes(data); err != nil {
			return err
		}
	}
	return nil
}

func readBins(br *persistence.BinaryReader) (map[int32]*roaring.Bitmap, error) {
	n, err := br.ReadUint32()
	if err != nil {
		return nil, err
	}
	bins := make(map[int32]*roaring.Bitmap, n)
	for i := uint32(0); i < n; i++ {
		bin, err := br.ReadUint32()
		if err != nil {
			return nil, err
		}
		size, err := br.ReadUint32()
		if err != nil {
			return nil, err
		}
		data, err := br.ReadBytes(int(size))
		if err != nil {
			return nil, err
		}
		bm := roaring.New()
		if err := bm.UnmarshalBinary(data); err != nil {
			return nil, fmt.Errorf("deserialize posting bitmap for bin %d: %w", int32(bin), err)
		}
		bins[int32(bin)] = bm
	}
	return bins, nil
}
