package entropy

import (
	"math"
	"sort"

	"github.com/2bereal-me/MSEntropy/spectrum"
)

// normalizePeaks returns a copy sorted by m/z with intensities scaled to
// unit sum. Zero-intensity input comes back unscaled.
func normalizePeaks(peaks []spectrum.Peak) []spectrum.Peak {
	out := make([]spectrum.Peak, len(peaks))
	copy(out, peaks)
	sort.Slice(out, func(i, j int) bool { return out[i].MZ < out[j].MZ })

	var sum float32
	for _, p := range out {
		sum += p.Intensity
	}
	if sum > 0 {
		for i := range out {
			out[i].Intensity /= sum
		}
	}
	return out
}

// neutralLossPeaks re-expresses fragment peaks as precursor-minus-fragment
// masses, sorted ascending in loss space.
func neutralLossPeaks(peaks []spectrum.Peak, precursorMZ float32) []spectrum.Peak {
	out := make([]spectrum.Peak, len(peaks))
	// Reversing an m/z-sorted list keeps the losses sorted.
	for i, p := range peaks {
		out[len(peaks)-1-i] = spectrum.Peak{MZ: precursorMZ - p.MZ, Intensity: p.Intensity}
	}
	return out
}

// similarity computes the spectral entropy similarity of two unit-normalized
// peak lists:
//
//	1 - (2*H_ab - H_a - H_b) / ln(4)
//
// where H is Shannon entropy and H_ab the entropy of the half-and-half
// mixture with peaks matched inside tol. Identical spectra score 1, disjoint
// spectra 0.
func similarity(a, b []spectrum.Peak, tol float32) float32 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	ha := entropyOf(a)
	hb := entropyOf(b)
	hab := mixtureEntropy(a, b, tol)

	sim := 1 - (2*hab-ha-hb)/math.Ln2/2
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return float32(sim)
}

func entropyOf(peaks []spectrum.Peak) float64 {
	var h float64
	for _, p := range peaks {
		if p.Intensity > 0 {
			v := float64(p.Intensity)
			h -= v * math.Log(v)
		}
	}
	return h
}

// mixtureEntropy merges two m/z-sorted peak lists, pairing peaks within tol,
// and returns the entropy of the averaged spectrum.
func mixtureEntropy(a, b []spectrum.Peak, tol float32) float64 {
	var h float64
	add := func(intensity float64) {
		if intensity > 0 {
			h -= intensity * math.Log(intensity)
		}
	}

	i, j := 0, 0
	for i < len(a) && j < len(b) {
		d := a[i].MZ - b[j].MZ
		switch {
		case d < -tol:
			add(float64(a[i].Intensity) / 2)
			i++
		case d > tol:
			add(float64(b[j].Intensity) / 2)
			j++
		default:
			add(float64(a[i].Intensity)/2 + float64(b[j].Intensity)/2)
			i++
			j++
		}
	}
	for ; i < len(a); i++ {
		add(float64(a[i].Intensity) / 2)
	}
	for ; j < len(b); j++ {
		add(float64(b[j].Intensity) / 2)
	}
	return h
}
