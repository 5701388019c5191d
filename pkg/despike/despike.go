// Package despike removes outlier samples from a finished series using a
// Hampel filter: each sample is compared against the median of a centered
// window, with a threshold scaled by the window's median absolute deviation.
package despike

import (
	"math"
	"sort"
)

// Defaults match the values the sensors were validated with.
const (
	DefaultWindow  = 11
	DefaultNSigmas = 5.0
)

// madScale converts a MAD into an estimate of the standard deviation for
// normally distributed data.
const madScale = 1.4826

// Options configure a filter pass. Zero values fall back to the defaults.
type Options struct {
	Window  int
	NSigmas float64
}

// Filter returns a filtered copy of vals. Samples that deviate from their
// window's median by more than NSigmas*1.4826*MAD are replaced with that
// median. Windows are clipped at the series boundaries. A zero MAD (flat
// window) never replaces the center sample. The input is not modified.
func Filter(vals []float64, opts Options) []float64 {
	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}
	nSigmas := opts.NSigmas
	if nSigmas <= 0 {
		nSigmas = DefaultNSigmas
	}

	n := len(vals)
	filtered := make([]float64, n)
	copy(filtered, vals)
	if n == 0 {
		return filtered
	}

	halfW := window / 2
	scratch := make([]float64, 0, window)

	for i := 0; i < n; i++ {
		start := i - halfW
		if start < 0 {
			start = 0
		}
		end := i + halfW + 1
		if end > n {
			end = n
		}

		scratch = append(scratch[:0], vals[start:end]...)
		med := median(scratch)

		for j, v := range scratch {
			scratch[j] = math.Abs(v - med)
		}
		mad := median(scratch)
		if mad == 0 {
			continue
		}

		if math.Abs(vals[i]-med) > nSigmas*madScale*mad {
			filtered[i] = med
		}
	}

	return filtered
}

// median sorts vals in place and returns the middle value (mean of the two
// middle values for even lengths).
func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sort.Float64s(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 1 {
		return vals[mid]
	}
	return (vals[mid-1] + vals[mid]) / 2
}

// Median returns the median of vals without modifying the input.
func Median(vals []float64) float64 {
	tmp := make([]float64, len(vals))
	copy(tmp, vals)
	return median(tmp)
}
