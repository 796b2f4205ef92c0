package spectrum

import "sort"

// CleanOptions controls peak cleaning prior to indexing.
type CleanOptions struct {
	// MinMZ drops peaks below it. Negative disables the lower bound.
	MinMZ float32
	// MaxMZ drops peaks at or above it. Negative disables the upper bound.
	// Callers typically set this to precursorMZ minus an exclusion window.
	MaxMZ float32
	// NoiseThreshold drops peaks below this fraction of the base peak.
	NoiseThreshold float32
	// MinPeakGap merges adjacent peaks closer than this many Da.
	MinPeakGap float32
	// MaxPeaks keeps only the most intense peaks. Zero means unlimited.
	MaxPeaks int
	// Normalize scales intensities to unit sum after filtering.
	Normalize bool
}

// CleanPeaks filters and centroids a peak list. Pure: the input slice is not
// modified. Peaks come back sorted by m/z; the result may be empty.
func CleanPeaks(peaks []Peak, opts CleanOptions) []Peak {
	out := make([]Peak, 0, len(peaks))
	for _, p := range peaks {
		if opts.MinMZ >= 0 && p.MZ < opts.MinMZ {
			continue
		}
		if opts.MaxMZ >= 0 && p.MZ >= opts.MaxMZ {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MZ < out[j].MZ })

	if opts.MinPeakGap > 0 {
		out = centroid(out, opts.MinPeakGap)
	}

	if opts.NoiseThreshold > 0 && len(out) > 0 {
		var base float32
		for _, p := range out {
			if p.Intensity > base {
				base = p.Intensity
			}
		}
		cutoff := opts.NoiseThreshold * base
		kept := out[:0]
		for _, p := range out {
			if p.Intensity >= cutoff {
				kept = append(kept, p)
			}
		}
		out = kept
	}

	if opts.MaxPeaks > 0 && len(out) > opts.MaxPeaks {
		sort.Slice(out, func(i, j int) bool { return out[i].Intensity > out[j].Intensity })
		out = out[:opts.MaxPeaks]
		sort.Slice(out, func(i, j int) bool { return out[i].MZ < out[j].MZ })
	}

	if opts.Normalize {
		var sum float32
		for _, p := range out {
			sum += p.Intensity
		}
		if sum > 0 {
			for i := range out {
				out[i].Intensity /= sum
			}
		}
	}

	return out
}

// centroid repeatedly merges the closest adjacent pair until every gap is at
// least minGap. Merged peaks get the intensity-weighted m/z and the summed
// intensity.
func centroid(peaks []Peak, minGap float32) []Peak {
	for len(peaks) > 1 {
		closest := -1
		var closestGap float32
		for i := 0; i < len(peaks)-1; i++ {
			gap := peaks[i+1].MZ - peaks[i].MZ
			if gap < minGap && (closest < 0 || gap < closestGap) {
				closest = i
				closestGap = gap
			}
		}
		if closest < 0 {
			break
		}

		a, b := peaks[closest], peaks[closest+1]
		total := a.Intensity + b.Intensity
		merged := Peak{MZ: (a.MZ + b.MZ) / 2, Intensity: total}
		if total > 0 {
			merged.MZ = (a.MZ*a.Intensity + b.MZ*b.Intensity) / total
		}
		peaks[closest] = merged
		peaks = append(peaks[:closest+1], peaks[closest+2:]...)
	}
	return peaks
}
