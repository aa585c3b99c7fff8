package cube

import "github.com/ifu-data/cubefit/internal/spectral"

// SignalMask reports, spaxel by spaxel in row-major order, whether the
// spectrum carries at least one finite sample.
func (c *Cube) SignalMask() []bool {
	nlam := c.NLam()
	out := make([]bool, c.NSpaxels())
	for s := range out {
		o := s * nlam
		out[s] = !spectral.AllNaN(c.Data[o : o+nlam])
	}
	return out
}

// ContinuumSNRMap measures the continuum signal-to-noise of every spaxel
// over the wavelength window [lo, hi] and returns a row-major spatial map.
// Spaxels with no usable signal in the window hold NaN.
func (c *Cube) ContinuumSNRMap(lo, hi float64) []float64 {
	nlam := c.NLam()
	out := make([]float64, c.NSpaxels())
	for s := range out {
		o := s * nlam
		out[s] = spectral.ContinuumSNR(c.Data[o:o+nlam], c.Wavelengths, lo, hi)
	}
	return out
}

// LinePeakSNRMap measures the line-peak signal-to-noise of every spaxel,
// peak over [lineLo, lineHi] against scatter over [contLo, contHi], and
// returns a row-major spatial map.
func (c *Cube) LinePeakSNRMap(lineLo, lineHi, contLo, contHi float64) []float64 {
	nlam := c.NLam()
	out := make([]float64, c.NSpaxels())
	for s := range out {
		o := s * nlam
		out[s] = spectral.LinePeakSNR(c.Data[o:o+nlam], c.Wavelengths, lineLo, lineHi, contLo, contHi)
	}
	return out
}
