package persistence

import "errors"

const (
	// MagicNumber identifies repository binary sidecar files (ASCII: "MSE1")
	MagicNumber = 0x4D534531
	// Version is the current sidecar file format version (v1.0.0)
	Version = 0x00010000

	// Sidecar kinds
	KindMetadataIndex = 1
	KindGroupStarts   = 2
	KindEntropyIndex  = 3
)

var (
	ErrInvalidMagic   = errors.New("invalid magic number")
	ErrInvalidVersion = errors.New("unsupported version")
	ErrInvalidKind    = errors.New("invalid sidecar kind")
)

// FileHeader is the 20-byte header at the start of every sidecar file.
// The spectrum log itself is headerless; only derived structures carry this.
type FileHeader struct {
	Magic   uint32 // 0x4D534531 ("MSE1")
	Version uint32 // File format version
	Kind    uint8  // 1=metadata index, 2=group starts, 3=entropy index
	Padding [3]byte
	Count   uint64 // Number of records in the body
}
