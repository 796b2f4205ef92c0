// Package filemeta maintains the mapping from randomly assigned file
// identifiers back to source-file names.
//
// Records are msgpack maps appended to metadata_info.bin; a sorted
// (file_id, start_loc, len) index persisted to metadata_index.bin gives
// positioned access without scanning the log. Resolving a global scan
// identifier finds the greatest file_id at or below it; the difference is
// the scan number local to that file.
//
// File identifiers are drawn uniformly at random from [0, 2^63). Nothing
// structurally prevents one file's [file_id, file_id+max_scan] range from
// overlapping a later file_id; with 63 bits of randomness and realistic scan
// counts a collision is improbable, and the scheme is kept as-is for
// compatibility with existing repositories.
package filemeta
