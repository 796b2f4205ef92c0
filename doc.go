// Package msentropy provides an on-disk, incrementally built similarity
// search repository for mass-spectrometry fragmentation spectra.
//
// Spectra ingested from instrument files are persisted in a compact binary
// layout partitioned by precursor charge state; queries return the top-N most
// similar stored spectra, each traceable back to its source file and local
// scan number.
//
// # Layout
//
// A repository root contains a metadata directory and one directory per
// observed charge state:
//
//	metadata/metadata_info.bin    append-only file-metadata log (msgpack records)
//	metadata/metadata_index.bin   sorted (file_id, start_loc, len) lookup array
//	charge_<N>/                   spectrum log, parallel arrays, engine index
//
// # Usage
//
//	repo, err := msentropy.Open("./repo")
//	if err != nil { ... }
//	defer repo.Close()
//
//	err = repo.AddSourceFile(ctx, "sample.mzML", source)
//	err = repo.BuildIndex(ctx)
//	err = repo.Persist()
//
//	matches, err := repo.Search(ctx, msentropy.SearchRequest{
//	    Charge: 1,
//	    Peaks:  queryPeaks,
//	    TopN:   100,
//	})
//
// The repository is single-writer: no operation is safe for concurrent
// invocation against the same root. Readers that only search after a prior
// Persist observe a consistent snapshot through read-only mapped arrays.
package msentropy
