// Package mmap provides read-only memory-mapped file access.
//
// The repository keeps its per-shard identifier and offset arrays as flat
// little-endian files; mapping them gives zero-copy positional access without
// reading the whole array into the heap.
//
// A Mapping is safe for concurrent reads. Close is idempotent, but callers
// must not touch Bytes() after Close returns.
package mmap
