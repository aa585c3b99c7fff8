package cube

import (
	"fmt"
	"math"

	"github.com/ifu-data/cubefit/internal/spectral/fitter"
	"github.com/ifu-data/cubefit/internal/spectral/lines"
)

// CubeResult is the dense, index-keyed outcome of a cube run: exactly one
// fitter.Result per spaxel, row-major, regardless of how the run ended.
// Spaxels the driver never reached carry the zero Result (NotAttempted), so
// the grid is always complete and two runs over the same input compare
// bit-for-bit.
type CubeResult struct {
	NX, NY  int
	RunID   string
	Results []fitter.Result
}

// NewCubeResult returns a complete result grid with every spaxel set to the
// NotAttempted sentinel.
func NewCubeResult(nx, ny int) *CubeResult {
	return &CubeResult{NX: nx, NY: ny, Results: make([]fitter.Result, nx*ny)}
}

func (r *CubeResult) idx(ix Index) int { return ix.Y*r.NX + ix.X }

// At returns the result for one spaxel.
func (r *CubeResult) At(ix Index) fitter.Result {
	return r.Results[r.idx(ix)]
}

// Set stores the result for one spaxel.
func (r *CubeResult) Set(ix Index, res fitter.Result) {
	r.Results[r.idx(ix)] = res
}

// StatusCounts tallies spaxels by fit status.
func (r *CubeResult) StatusCounts() map[fitter.Status]int {
	counts := make(map[fitter.Status]int)
	for i := range r.Results {
		counts[r.Results[i].Status]++
	}
	return counts
}

// ParamMap extracts one named parameter as a row-major spatial map. Spaxels
// whose fit never produced the parameter hold NaN.
func (r *CubeResult) ParamMap(name string) []float64 {
	out := nanMap(r.NX * r.NY)
	for i := range r.Results {
		if p, ok := r.Results[i].Param(name); ok {
			out[i] = p.Value
		}
	}
	return out
}

// StderrMap extracts one named parameter's 1-sigma uncertainty as a
// row-major spatial map, NaN where absent.
func (r *CubeResult) StderrMap(name string) []float64 {
	out := nanMap(r.NX * r.NY)
	for i := range r.Results {
		if p, ok := r.Results[i].Param(name); ok {
			out[i] = p.Stderr
		}
	}
	return out
}

// FluxMap derives the integrated line flux map for one model component from
// its fitted amplitude and width.
func (r *CubeResult) FluxMap(component string) []float64 {
	out := nanMap(r.NX * r.NY)
	for i := range r.Results {
		amp, okA := r.Results[i].Param("amp_" + component)
		sig, okS := r.Results[i].Param("sigma_" + component)
		if okA && okS {
			out[i] = lines.Flux(amp.Value, sig.Value)
		}
	}
	return out
}

// VelocityMap derives the line-of-sight velocity map for one model component
// relative to its rest wavelength.
func (r *CubeResult) VelocityMap(component string, restLam float64) []float64 {
	out := nanMap(r.NX * r.NY)
	for i := range r.Results {
		if c, ok := r.Results[i].Param("center_" + component); ok {
			out[i] = lines.Velocity(c.Value, restLam)
		}
	}
	return out
}

// Validate checks the completeness invariant: a result for every spaxel of
// the stated extent, no more, no fewer.
func (r *CubeResult) Validate() error {
	if r.NX <= 0 || r.NY <= 0 {
		return fmt.Errorf("result extent must be positive, got %dx%d", r.NX, r.NY)
	}
	if len(r.Results) != r.NX*r.NY {
		return fmt.Errorf("got %d results for a %dx%d grid", len(r.Results), r.NX, r.NY)
	}
	return nil
}

func nanMap(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
