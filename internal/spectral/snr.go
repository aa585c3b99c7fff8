package spectral

import "math"

// SNR estimation for spaxel selection. The continuum SNR compares the median
// intensity across a feature-free wavelength window against the scatter in
// the same window. The line SNR measures the peak above the continuum noise;
// crude, but it only needs to separate empty spaxels from ones worth fitting.

// ContinuumSNR returns the continuum signal-to-noise of flux over the
// wavelength window [lo, hi]: nan-median / nan-stddev, clamped at zero.
// Returns NaN when the window carries no usable signal.
func ContinuumSNR(flux, lams []float64, lo, hi float64) float64 {
	i0, i1 := GridWindow(lams, lo, hi)
	if i0 >= i1 {
		return math.NaN()
	}
	window := flux[i0:i1]
	s := NaNMedian(window)
	n := NaNStdDev(window)
	if math.IsNaN(s) || math.IsNaN(n) || n == 0 {
		return math.NaN()
	}
	snr := s / n
	if snr < 0 {
		return 0
	}
	return snr
}

// LinePeakSNR returns the peak flux inside the line window [lineLo, lineHi]
// divided by the continuum noise measured over [contLo, contHi], clamped at
// zero. Returns NaN when either window carries no usable signal.
func LinePeakSNR(flux, lams []float64, lineLo, lineHi, contLo, contHi float64) float64 {
	li0, li1 := GridWindow(lams, lineLo, lineHi)
	ci0, ci1 := GridWindow(lams, contLo, contHi)
	if li0 >= li1 || ci0 >= ci1 {
		return math.NaN()
	}
	peak := NaNMax(flux[li0:li1])
	noise := NaNStdDev(flux[ci0:ci1])
	if math.IsNaN(peak) || math.IsNaN(noise) || noise == 0 {
		return math.NaN()
	}
	snr := peak / noise
	if snr < 0 {
		return 0
	}
	return snr
}

// LineWindow returns the wavelength window around a reference line centre
// corresponding to ±dv km/s.
func LineWindow(refLam, dv float64) (lo, hi float64) {
	return refLam * (1 - dv/SpeedOfLight), refLam * (1 + dv/SpeedOfLight)
}

// SpeedOfLight in km/s, the unit used for velocity offsets throughout.
const SpeedOfLight = 299792.458
