package cube

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"

	"github.com/ifu-data/cubefit/internal/monitoring"
	"github.com/ifu-data/cubefit/internal/spectral"
	"github.com/ifu-data/cubefit/internal/spectral/fitter"
)

// Store is the checkpoint contract the driver persists through. A run is
// resumable: spaxels already saved under the run ID are loaded back and never
// refitted.
type Store interface {
	// SaveResult records one finished spaxel under the run.
	SaveResult(runID string, ix Index, res fitter.Result) error
	// Completed returns every spaxel already saved under the run.
	Completed(runID string) (map[Index]fitter.Result, error)
}

// Config holds the cube-run execution parameters.
type Config struct {
	// Workers is the fixed worker pool size. Zero means one worker per
	// available CPU.
	Workers int // default: runtime.GOMAXPROCS(0)

	// MinContinuumSNR gates fitting: spaxels whose continuum SNR inside
	// SNRWindow falls below it are recorded NotAttempted without running
	// the solver. Zero disables the gate.
	MinContinuumSNR float64 // default: 0

	// SNRWindow is the [lo, hi] wavelength window the gate measures over.
	// Required when MinContinuumSNR > 0.
	SNRWindow [2]float64

	// ProgressEvery logs a progress line after that many finished spaxels.
	// Zero disables progress logging.
	ProgressEvery int // default: 0

	// Store optionally persists per-spaxel checkpoints and enables resume.
	Store Store

	// RunID names the run for checkpointing. Empty means a fresh random ID.
	RunID string
}

// DefaultConfig returns the canonical run parameters: full parallelism, no
// SNR gate, no checkpointing.
func DefaultConfig() Config {
	return Config{}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("Workers must be non-negative, got %d", c.Workers)
	}
	if c.MinContinuumSNR < 0 {
		return fmt.Errorf("MinContinuumSNR must be non-negative, got %f", c.MinContinuumSNR)
	}
	if c.MinContinuumSNR > 0 && c.SNRWindow[0] >= c.SNRWindow[1] {
		return fmt.Errorf("SNRWindow must be an increasing interval, got [%f, %f]", c.SNRWindow[0], c.SNRWindow[1])
	}
	if c.ProgressEvery < 0 {
		return fmt.Errorf("ProgressEvery must be non-negative, got %d", c.ProgressEvery)
	}
	return nil
}

// Driver runs one fitter over every spaxel of a cube on a fixed worker pool.
// It is safe for sequential reuse; each Run is independent.
type Driver struct {
	fit *fitter.Fitter
	cfg Config
}

// NewDriver validates the configuration and returns a ready driver.
func NewDriver(f *fitter.Fitter, cfg Config) (*Driver, error) {
	if f == nil {
		return nil, fmt.Errorf("driver needs a fitter")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Driver{fit: f, cfg: cfg}, nil
}

type outcome struct {
	ix  Index
	res fitter.Result
}

// Run fits every spaxel of the cube and returns the complete result grid.
//
// Partial failure is data, not an error: a spaxel that fails numerically or
// panics lands in the grid under its own status and the run continues. Run
// returns a non-nil error only for malformed input, a failed resume load, or
// cancellation; on cancellation the partial grid is still returned, with
// unreached spaxels left NotAttempted.
func (d *Driver) Run(ctx context.Context, c *Cube) (*CubeResult, error) {
	if c == nil {
		return nil, fmt.Errorf("driver needs a cube")
	}
	if len(c.Wavelengths) != len(d.fit.Wavelengths()) {
		return nil, fmt.Errorf("cube depth %d does not match fitter grid length %d", len(c.Wavelengths), len(d.fit.Wavelengths()))
	}
	for i, lam := range d.fit.Wavelengths() {
		if c.Wavelengths[i] != lam {
			return nil, fmt.Errorf("cube wavelength grid differs from fitter grid at index %d", i)
		}
	}

	result := NewCubeResult(c.NX, c.NY)
	result.RunID = d.cfg.RunID
	if result.RunID == "" && d.cfg.Store != nil {
		result.RunID = uuid.NewString()
	}

	// Resume: anything already checkpointed under this run is final.
	done := map[Index]fitter.Result{}
	if d.cfg.Store != nil && d.cfg.RunID != "" {
		var err error
		done, err = d.cfg.Store.Completed(result.RunID)
		if err != nil {
			return nil, fmt.Errorf("loading checkpoints for run %s: %w", result.RunID, err)
		}
		for ix, res := range done {
			if !c.Contains(ix) {
				return nil, fmt.Errorf("checkpoint for spaxel %v outside %dx%d cube", ix, c.NX, c.NY)
			}
			result.Set(ix, res)
		}
	}

	pending := make([]Index, 0, c.NSpaxels())
	for y := 0; y < c.NY; y++ {
		for x := 0; x < c.NX; x++ {
			ix := Index{X: x, Y: y}
			if _, ok := done[ix]; !ok {
				pending = append(pending, ix)
			}
		}
	}
	if len(done) > 0 {
		monitoring.Logf("[CubeFit] run %s resuming: %d/%d spaxels already done", result.RunID, len(done), c.NSpaxels())
	}

	workers := d.cfg.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	jobs := make(chan Index)
	outcomes := make(chan outcome, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ix := range jobs {
				if ctx.Err() != nil {
					// Leave the spaxel NotAttempted; the collector never
					// hears about it.
					continue
				}
				outcomes <- outcome{ix: ix, res: d.fitOne(c, ix)}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, ix := range pending {
			select {
			case jobs <- ix:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	// Single-writer collection keeps the grid and the store free of races.
	finished := len(done)
	for out := range outcomes {
		result.Set(out.ix, out.res)
		finished++
		if d.cfg.Store != nil {
			if err := d.cfg.Store.SaveResult(result.RunID, out.ix, out.res); err != nil {
				monitoring.Logf("[CubeFit] checkpoint for spaxel %v failed: %v", out.ix, err)
			}
		}
		if d.cfg.ProgressEvery > 0 && finished%d.cfg.ProgressEvery == 0 {
			monitoring.Logf("[CubeFit] run %s: %d/%d spaxels done", result.RunID, finished, c.NSpaxels())
		}
	}

	if err := ctx.Err(); err != nil {
		monitoring.Logf("[CubeFit] run %s cancelled after %d/%d spaxels", result.RunID, finished, c.NSpaxels())
		return result, err
	}
	return result, nil
}

// fitOne runs the per-spectrum pipeline for one spaxel. A panic inside the
// numerics is contained here and becomes a WorkerFailure result.
func (d *Driver) fitOne(c *Cube, ix Index) (res fitter.Result) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Logf("[CubeFit] spaxel %v panicked: %v", ix, r)
			res = fitter.Result{Status: fitter.StatusWorkerFailure}
		}
	}()

	flux := c.Spectrum(ix)
	if d.cfg.MinContinuumSNR > 0 {
		snr := spectral.ContinuumSNR(flux, c.Wavelengths, d.cfg.SNRWindow[0], d.cfg.SNRWindow[1])
		if !(snr >= d.cfg.MinContinuumSNR) {
			return fitter.Result{Status: fitter.StatusNotAttempted}
		}
	}

	res, err := d.fit.Fit(flux, c.ErrorSpectrum(ix))
	if err != nil {
		// A validated cube cannot hand the fitter mismatched input, so any
		// error here counts against the worker, not the spaxel.
		monitoring.Logf("[CubeFit] spaxel %v: %v", ix, err)
		return fitter.Result{Status: fitter.StatusWorkerFailure}
	}
	return res
}
