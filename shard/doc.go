// Package shard implements the per-charge storage unit of the repository.
//
// A shard owns four files under its charge directory: the append-only
// spectrum log (ms2_data.bin), the parallel identifier and byte-offset
// arrays (spec_id_array.bin, loc_array.bin, raw little-endian uint64, no
// header), and the engine's group-boundary array (group_start.bin). Index
// position i is the shared key across the arrays and the similarity engine's
// ranking output.
//
// Ingestion appends to the log and arrays immediately; spectra additionally
// accumulate in an in-memory cache that is folded into the similarity engine
// in threshold-sized build cycles. Reads go through read-only memory-mapped
// array views established lazily on first access.
package shard
