package continuum

import (
	"fmt"
	"math"
	"sort"

	"github.com/ifu-data/cubefit/internal/spectral"
)

// Config holds the smoothing parameters.
type Config struct {
	// Fraction is the proportion of neighbouring samples used to estimate
	// each output value (locality bandwidth). Must be in (0, 1].
	Fraction float64 // default: 0.05

	// Iterations is the number of robustness reweighting passes that
	// down-weight samples far from the current fit. Must be >= 0.
	Iterations int // default: 5
}

// DefaultConfig returns the canonical smoothing parameters.
func DefaultConfig() Config {
	return Config{Fraction: 0.05, Iterations: 5}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Fraction <= 0 || c.Fraction > 1 {
		return fmt.Errorf("Fraction must be in (0, 1], got %f", c.Fraction)
	}
	if c.Iterations < 0 {
		return fmt.Errorf("Iterations must be non-negative, got %d", c.Iterations)
	}
	return nil
}

// Smooth fits a robust smooth baseline through flux over the wavelength axis
// lams and returns the estimate evaluated at every input wavelength, same
// length and order as the input.
//
// NaN samples are dropped from the regression input and never contaminate
// neighbouring estimates. An all-NaN spectrum is a recognised degenerate
// case: the result is an all-NaN estimate of identical length, with no error
// and no log output. Only malformed input (mismatched lengths, bad grid,
// invalid config) produces an error.
func Smooth(flux, lams []float64, cfg Config) ([]float64, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := spectral.CheckSpectrum(flux, lams); err != nil {
		return nil, err
	}

	out := make([]float64, len(flux))
	for i := range out {
		out[i] = math.NaN()
	}

	// Degenerate case first: do not attempt a fit on an empty spectrum.
	if spectral.AllNaN(flux) {
		return out, nil
	}

	// Drop missing samples from the regression input. The wavelength axis is
	// strictly increasing, so xs stays sorted.
	xs := make([]float64, 0, len(flux))
	ys := make([]float64, 0, len(flux))
	for i, v := range flux {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		xs = append(xs, lams[i])
		ys = append(ys, v)
	}
	n := len(xs)
	if n < 2 {
		// A single usable sample cannot constrain a local line; leave the
		// estimate all-NaN rather than extrapolating from one point.
		return out, nil
	}

	// Window size: fraction of the usable samples, at least 2.
	k := int(math.Ceil(cfg.Fraction * float64(n)))
	if k < 2 {
		k = 2
	}
	if k > n {
		k = n
	}

	robust := make([]float64, n) // bisquare robustness weights
	for i := range robust {
		robust[i] = 1
	}
	fitted := make([]float64, n) // fit at the usable samples, for residuals

	for iter := 0; ; iter++ {
		for i, x := range xs {
			fitted[i] = localFit(xs, ys, robust, x, k)
		}

		if iter >= cfg.Iterations {
			break
		}

		// Bisquare reweighting against six median absolute residuals.
		resid := make([]float64, n)
		for i := range resid {
			resid[i] = math.Abs(ys[i] - fitted[i])
		}
		sorted := append([]float64(nil), resid...)
		sort.Float64s(sorted)
		s := sorted[n/2]
		if s == 0 {
			break // already an exact fit; further passes change nothing
		}
		for i := range robust {
			u := resid[i] / (6 * s)
			if u >= 1 {
				robust[i] = 0
				continue
			}
			w := 1 - u*u
			robust[i] = w * w
		}
	}

	// Evaluate at every original wavelength, including the missing positions.
	for i, x := range lams {
		out[i] = localFit(xs, ys, robust, x, k)
	}
	return out, nil
}

// localFit computes the tricube-weighted linear regression of the k nearest
// usable samples around x, evaluated at x. When robustness reweighting has
// zeroed the whole window, the fit falls back to plain tricube weights
// rather than leaving a hole in the estimate.
func localFit(xs, ys, robust []float64, x float64, k int) float64 {
	if v := localFitWeighted(xs, ys, robust, x, k); !math.IsNaN(v) {
		return v
	}
	return localFitWeighted(xs, ys, nil, x, k)
}

// localFitWeighted is localFit with explicit robustness weights; nil means
// all ones. Returns NaN when all candidate weights vanish.
func localFitWeighted(xs, ys, robust []float64, x float64, k int) float64 {
	lo, hi := nearestWindow(xs, x, k)
	h := math.Max(x-xs[lo], xs[hi-1]-x)

	var sw, swx, swy, swxx, swxy float64
	for i := lo; i < hi; i++ {
		w := 1.0
		if robust != nil {
			w = robust[i]
		}
		if w == 0 {
			continue
		}
		if h > 0 {
			d := math.Abs(xs[i]-x) / h
			if d >= 1 {
				continue
			}
			t := 1 - d*d*d
			w *= t * t * t
		}
		dx := xs[i] - x
		sw += w
		swx += w * dx
		swy += w * ys[i]
		swxx += w * dx * dx
		swxy += w * dx * ys[i]
	}
	if sw == 0 {
		return math.NaN()
	}

	// Weighted least squares for y = a + b*(x_i - x); the estimate at x is a.
	det := sw*swxx - swx*swx
	if math.Abs(det) < 1e-12*sw*swxx || swxx == 0 {
		return swy / sw // degenerate spread, fall back to the weighted mean
	}
	return (swxx*swy - swx*swxy) / det
}

// nearestWindow returns the half-open range [lo, hi) of the k samples of the
// sorted slice xs closest to x.
func nearestWindow(xs []float64, x float64, k int) (lo, hi int) {
	n := len(xs)
	if k >= n {
		return 0, n
	}
	// Start just right of x and grow the window toward the nearer side.
	lo = sort.SearchFloat64s(xs, x)
	hi = lo
	for hi-lo < k {
		switch {
		case lo == 0:
			hi++
		case hi == n:
			lo--
		case x-xs[lo-1] <= xs[hi]-x:
			lo--
		default:
			hi++
		}
	}
	return lo, hi
}
