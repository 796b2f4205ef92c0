// Package spectrum defines the fragmentation-spectrum record and its binary
// wire codec.
//
// # Wire Format
//
// Each record is a fixed 20-byte little-endian header followed by a
// variable-length peak block:
//
//	[scan:u64][precursor_mz:f32][rt:f32][charge:i16][peak_count:u16]
//	peak_count × [mz:f32][intensity:f32]
//
// The format carries no file-level framing and no resynchronization marker:
// a reader must either know where a record starts or consume the stream
// sequentially, and one corrupt header poisons every later read from that
// position. The layout is frozen for compatibility with existing on-disk
// repositories.
package spectrum
