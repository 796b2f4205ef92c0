package spectrum

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	// HeaderSize is the fixed size of the record header in bytes.
	HeaderSize = 20
	// MaxPeaks is the largest peak count the u16 length field can carry.
	MaxPeaks = 0xFFFF
	// peakSize is the encoded size of one (m/z, intensity) pair.
	peakSize = 8
)

// ErrInvalidSpectrum is the base error for malformed or out-of-range wire
// data. All codec validation failures unwrap to it.
var ErrInvalidSpectrum = errors.New("invalid spectrum")

var (
	// ErrTooManyPeaks is returned when a spectrum exceeds MaxPeaks.
	ErrTooManyPeaks = fmt.Errorf("%w: too many peaks", ErrInvalidSpectrum)
	// ErrShortBuffer is returned when a buffer cannot hold a record header.
	ErrShortBuffer = fmt.Errorf("%w: buffer shorter than header", ErrInvalidSpectrum)
	// ErrSizeMismatch is returned when the declared peak count does not
	// match the buffer length exactly.
	ErrSizeMismatch = fmt.Errorf("%w: size mismatch", ErrInvalidSpectrum)
	// ErrNegativePrecursorMZ indicates a negative precursor m/z in a decoded
	// header, treated as corruption.
	ErrNegativePrecursorMZ = fmt.Errorf("%w: negative precursor m/z", ErrInvalidSpectrum)
)

// Encode serializes a spectrum into its wire representation.
func Encode(s *Spectrum) ([]byte, error) {
	n := len(s.Peaks)
	if n > MaxPeaks {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyPeaks, n, MaxPeaks)
	}

	buf := make([]byte, HeaderSize+n*peakSize)
	binary.LittleEndian.PutUint64(buf[0:8], s.Scan)
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(s.PrecursorMZ))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(s.RT))
	binary.LittleEndian.PutUint16(buf[16:18], uint16(s.Charge))
	binary.LittleEndian.PutUint16(buf[18:20], uint16(n))

	for i, p := range s.Peaks {
		off := HeaderSize + i*peakSize
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(p.MZ))
		binary.LittleEndian.PutUint32(buf[off+4:off+8], math.Float32bits(p.Intensity))
	}
	return buf, nil
}

// Decode deserializes exactly one spectrum from data.
// The buffer must contain the record and nothing else.
func Decode(data []byte) (*Spectrum, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortBuffer, len(data))
	}

	s, peakCount := decodeHeader(data)
	if s.PrecursorMZ < 0 {
		return nil, fmt.Errorf("%w: %v (scan %d)", ErrNegativePrecursorMZ, s.PrecursorMZ, s.Scan)
	}
	expected := HeaderSize + peakCount*peakSize
	if len(data) != expected {
		return nil, fmt.Errorf("%w: %d bytes, want %d for %d peaks", ErrSizeMismatch, len(data), expected, peakCount)
	}

	s.Peaks = decodePeaks(data[HeaderSize:], peakCount)
	return s, nil
}

func decodeHeader(data []byte) (*Spectrum, int) {
	s := &Spectrum{
		Scan:        binary.LittleEndian.Uint64(data[0:8]),
		PrecursorMZ: math.Float32frombits(binary.LittleEndian.Uint32(data[8:12])),
		RT:          math.Float32frombits(binary.LittleEndian.Uint32(data[12:16])),
		Charge:      int16(binary.LittleEndian.Uint16(data[16:18])),
	}
	return s, int(binary.LittleEndian.Uint16(data[18:20]))
}

func decodePeaks(data []byte, count int) []Peak {
	peaks := make([]Peak, count)
	for i := range peaks {
		off := i * peakSize
		peaks[i].MZ = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
		peaks[i].Intensity = math.Float32frombits(binary.LittleEndian.Uint32(data[off+4 : off+8]))
	}
	return peaks
}

// StreamReader decodes consecutive records from a forward-only stream.
//
// Offsets in returned errors are relative to the stream position at which
// the reader was created.
type StreamReader struct {
	r      io.Reader
	offset int64
	end    int64 // -1: read to EOF
}

// NewStreamReader creates a reader that decodes records starting at the
// stream's current position. If end >= 0, reading stops once the reader has
// consumed end bytes; otherwise it stops at EOF.
func NewStreamReader(r io.Reader, end int64) *StreamReader {
	return &StreamReader{r: r, end: end}
}

// Offset returns the number of bytes consumed so far.
func (sr *StreamReader) Offset() int64 {
	return sr.offset
}

// Next decodes the next record. It returns io.EOF once the configured end
// offset or the end of the stream is reached. A trailing partial header also
// terminates the sequence; a payload shorter than its header declares is an
// error, as there is no way to resynchronize.
func (sr *StreamReader) Next() (*Spectrum, error) {
	if sr.end >= 0 && sr.offset >= sr.end {
		return nil, io.EOF
	}

	header := make([]byte, HeaderSize)
	n, err := io.ReadFull(sr.r, header)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		sr.offset += int64(n)
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("read header at offset %d: %w", sr.offset, err)
	}

	s, peakCount := decodeHeader(header)
	if s.PrecursorMZ < 0 {
		return nil, fmt.Errorf("offset %d: %w: %v (scan %d, rt %v, charge %d, %d peaks)",
			sr.offset, ErrNegativePrecursorMZ, s.PrecursorMZ, s.Scan, s.RT, s.Charge, peakCount)
	}
	sr.offset += HeaderSize

	payload := make([]byte, peakCount*peakSize)
	if _, err := io.ReadFull(sr.r, payload); err != nil {
		return nil, fmt.Errorf("offset %d: %w: reading %d peaks for scan %d: %v",
			sr.offset, ErrSizeMismatch, peakCount, s.Scan, err)
	}
	sr.offset += int64(len(payload))

	s.Peaks = decodePeaks(payload, peakCount)
	return s, nil
}
