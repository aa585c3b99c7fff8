package cube

import (
	"fmt"
	"math"

	"github.com/ifu-data/cubefit/internal/spectral"
)

// Index addresses one spaxel by its spatial position.
type Index struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (ix Index) String() string {
	return fmt.Sprintf("(%d,%d)", ix.X, ix.Y)
}

// Cube is a spectral data cube: NX*NY spectra sampled on one shared
// wavelength grid. Data is stored flat, spaxel-major, so the spectrum of
// spaxel (x, y) occupies Data[(y*NX+x)*nlam : (y*NX+x+1)*nlam].
//
// Errors optionally carries the matching 1-sigma error cube with identical
// layout; nil means unweighted fits.
type Cube struct {
	NX, NY      int
	Wavelengths []float64
	Data        []float64
	Errors      []float64
}

// New validates the dimensions against the flat payload and returns the
// assembled cube. The data slices are retained, not copied.
func New(nx, ny int, wavelengths, data, errs []float64) (*Cube, error) {
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("cube extent must be positive, got %dx%d", nx, ny)
	}
	if err := spectral.CheckGrid(wavelengths); err != nil {
		return nil, err
	}
	want := nx * ny * len(wavelengths)
	if len(data) != want {
		return nil, fmt.Errorf("data length %d does not match %dx%dx%d cube", len(data), nx, ny, len(wavelengths))
	}
	if errs != nil && len(errs) != want {
		return nil, fmt.Errorf("error cube length %d does not match %dx%dx%d cube", len(errs), nx, ny, len(wavelengths))
	}
	return &Cube{NX: nx, NY: ny, Wavelengths: wavelengths, Data: data, Errors: errs}, nil
}

// NLam returns the spectral depth.
func (c *Cube) NLam() int { return len(c.Wavelengths) }

// NSpaxels returns the spatial extent.
func (c *Cube) NSpaxels() int { return c.NX * c.NY }

// Contains reports whether the index lies inside the spatial extent.
func (c *Cube) Contains(ix Index) bool {
	return ix.X >= 0 && ix.X < c.NX && ix.Y >= 0 && ix.Y < c.NY
}

func (c *Cube) offset(ix Index) int {
	return (ix.Y*c.NX + ix.X) * c.NLam()
}

// Spectrum returns a copy of the flux spectrum at ix. Copying keeps workers
// free to scribble on their input without aliasing the cube.
func (c *Cube) Spectrum(ix Index) []float64 {
	o := c.offset(ix)
	return append([]float64(nil), c.Data[o:o+c.NLam()]...)
}

// ErrorSpectrum returns a copy of the error spectrum at ix, or nil when the
// cube carries no error extension.
func (c *Cube) ErrorSpectrum(ix Index) []float64 {
	if c.Errors == nil {
		return nil
	}
	o := c.offset(ix)
	return append([]float64(nil), c.Errors[o:o+c.NLam()]...)
}

// SetSpectrum overwrites the flux spectrum at ix. Used by cube builders and
// tests; the driver never mutates its input cube.
func (c *Cube) SetSpectrum(ix Index, flux []float64) error {
	if !c.Contains(ix) {
		return fmt.Errorf("spaxel %v outside %dx%d cube", ix, c.NX, c.NY)
	}
	if len(flux) != c.NLam() {
		return fmt.Errorf("spectrum length %d does not match grid length %d", len(flux), c.NLam())
	}
	copy(c.Data[c.offset(ix):], flux)
	return nil
}

// Blank returns a cube of the given extent with every sample set to NaN,
// ready to be filled spaxel by spaxel.
func Blank(nx, ny int, wavelengths []float64) (*Cube, error) {
	data := make([]float64, nx*ny*len(wavelengths))
	for i := range data {
		data[i] = math.NaN()
	}
	return New(nx, ny, wavelengths, data, nil)
}
