// Package entropy implements the default similarity engine: spectral entropy
// scoring over m/z-binned posting lists.
//
// Every indexed spectrum's peaks are intensity-normalized and dropped into
// fixed-width m/z bins; each bin keeps a roaring bitmap of the shard
// positions that have a peak there. A query unions the bitmaps of the bins
// its peaks touch, then scores each surviving candidate with the entropy
// similarity of the two peak lists. The neutral-loss variant bins
// precursor-minus-fragment masses instead, so spectra of related precursors
// with shared losses still match.
//
// fast_update builds append a new posting group without touching existing
// bitmaps; fast_search builds additionally run-optimize every bitmap for
// query throughput.
package entropy
