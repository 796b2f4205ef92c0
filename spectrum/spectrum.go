package spectrum

// Peak is a single (m/z, intensity) pair.
type Peak struct {
	MZ        float32
	Intensity float32
}

// RTUnknown is the sentinel retention time for records without one.
const RTUnknown = float32(-1)

// Spectrum is one fragmentation spectrum.
//
// Scan holds the local scan number while the record is still tied to its
// source file; after ingestion it is rewritten to the global identifier
// (local scan + file identifier).
type Spectrum struct {
	Scan        uint64
	PrecursorMZ float32
	RT          float32
	Charge      int16
	Peaks       []Peak
}

// Clone returns a deep copy of the spectrum.
func (s *Spectrum) Clone() *Spectrum {
	c := *s
	c.Peaks = make([]Peak, len(s.Peaks))
	copy(c.Peaks, s.Peaks)
	return &c
}
