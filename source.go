package msentropy

import (
	"io"

	"github.com/2bereal-me/MSEntropy/spectrum"
)

// RawSpectrum is one record as read from an instrument file, before any
// identifier rewriting or cleaning.
type RawSpectrum struct {
	// ScanNumber is the scan number local to the source file.
	ScanNumber uint64
	// MSLevel tags the record; only fragmentation records (level != 1)
	// are ingested.
	MSLevel     int
	PrecursorMZ float32
	RT          float32
	Charge      int16
	Peaks       []spectrum.Peak
}

// Source yields raw spectra from one source file. Next returns io.EOF after
// the last record. Instrument-file parsers implement this; the repository
// never touches the file format itself.
type Source interface {
	Next() (*RawSpectrum, error)
}

// SliceSource adapts an in-memory slice to the Source contract.
type SliceSource struct {
	specs []*RawSpectrum
	pos   int
}

// NewSliceSource creates a Source over the given records.
func NewSliceSource(specs ...*RawSpectrum) *SliceSource {
	return &SliceSource{specs: specs}
}

// Next implements Source.
func (s *SliceSource) Next() (*RawSpectrum, error) {
	if s.pos >= len(s.specs) {
		return nil, io.EOF
	}
	spec := s.specs[s.pos]
	s.pos++
	return spec, nil
}
