package spectral

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// CheckGrid validates a wavelength axis: non-empty and strictly increasing.
func CheckGrid(lams []float64) error {
	if len(lams) == 0 {
		return fmt.Errorf("empty wavelength axis")
	}
	for i := 1; i < len(lams); i++ {
		if !(lams[i] > lams[i-1]) {
			return fmt.Errorf("wavelength axis not strictly increasing at index %d (%v >= %v)",
				i, lams[i-1], lams[i])
		}
	}
	return nil
}

// CheckSpectrum validates a flux/wavelength pair: matching lengths and a
// valid grid.
func CheckSpectrum(flux, lams []float64) error {
	if err := CheckGrid(lams); err != nil {
		return err
	}
	if len(flux) != len(lams) {
		return fmt.Errorf("flux length %d does not match wavelength axis length %d",
			len(flux), len(lams))
	}
	return nil
}

// AllNaN reports whether every sample in x is NaN. An empty slice counts as
// all-missing.
func AllNaN(x []float64) bool {
	for _, v := range x {
		if !math.IsNaN(v) {
			return false
		}
	}
	return true
}

// FiniteCount returns the number of finite (non-NaN, non-Inf) samples in x.
func FiniteCount(x []float64) int {
	var n int
	for _, v := range x {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			n++
		}
	}
	return n
}

// finite collects the finite samples of x into a fresh slice.
func finite(x []float64) []float64 {
	out := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// NaNMedian returns the median of the finite samples of x, or NaN when no
// finite sample exists. All-missing input is a recognised degenerate case,
// not an error.
func NaNMedian(x []float64) float64 {
	f := finite(x)
	if len(f) == 0 {
		return math.NaN()
	}
	sort.Float64s(f)
	return stat.Quantile(0.5, stat.Empirical, f, nil)
}

// NaNStdDev returns the population standard deviation of the finite samples
// of x, or NaN when fewer than two finite samples exist.
func NaNStdDev(x []float64) float64 {
	f := finite(x)
	if len(f) < 2 {
		return math.NaN()
	}
	return stat.PopStdDev(f, nil)
}

// NaNMax returns the maximum finite sample of x, or NaN when no finite
// sample exists.
func NaNMax(x []float64) float64 {
	out := math.NaN()
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if math.IsNaN(out) || v > out {
			out = v
		}
	}
	return out
}

// GridWindow returns the half-open index range [i0, i1) of samples whose
// wavelength falls within [lo, hi]. The grid must be increasing.
func GridWindow(lams []float64, lo, hi float64) (i0, i1 int) {
	i0 = sort.SearchFloat64s(lams, lo)
	i1 = sort.SearchFloat64s(lams, hi)
	for i1 < len(lams) && lams[i1] <= hi {
		i1++
	}
	return i0, i1
}
