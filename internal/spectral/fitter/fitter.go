package fitter

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/ifu-data/cubefit/internal/spectral"
	"github.com/ifu-data/cubefit/internal/spectral/continuum"
	"github.com/ifu-data/cubefit/internal/spectral/lines"
	"github.com/ifu-data/cubefit/internal/spectral/lsq"
)

// Status classifies the outcome of one spaxel's fit.
type Status int

const (
	// StatusNotAttempted means the line fit never ran: the spectrum carried
	// no usable signal, or the spaxel was skipped by selection or
	// cancellation.
	StatusNotAttempted Status = iota
	// StatusConverged means the solver met its tolerances.
	StatusConverged
	// StatusMaxIterations means the solver ran out of budget; parameters
	// are best-effort.
	StatusMaxIterations
	// StatusNumericalFailure means the solver hit a singular system or the
	// residual could not constrain the model.
	StatusNumericalFailure
	// StatusWorkerFailure means the fit panicked and was recovered at the
	// driver boundary.
	StatusWorkerFailure
)

func (s Status) String() string {
	switch s {
	case StatusNotAttempted:
		return "not-attempted"
	case StatusConverged:
		return "converged"
	case StatusMaxIterations:
		return "max-iterations"
	case StatusNumericalFailure:
		return "numerical-failure"
	case StatusWorkerFailure:
		return "worker-failure"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Attempted reports whether the line fit actually ran.
func (s Status) Attempted() bool {
	return s != StatusNotAttempted && s != StatusWorkerFailure
}

// Param is one named fit parameter with its 1-sigma uncertainty.
type Param struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Stderr float64 `json:"stderr"`
}

// Result is the immutable outcome of fitting one spectrum. A zero Result is
// the NotAttempted sentinel with no continuum estimate.
type Result struct {
	// Continuum is the baseline estimate on the input grid; all-NaN when
	// the spectrum carried no usable signal.
	Continuum []float64 `json:"-"`

	Status Status `json:"status"`

	// Params holds the packed model parameters in model order; nil unless
	// the fit ran.
	Params []Param `json:"params,omitempty"`

	ChiSq      float64 `json:"chisq"`
	RedChiSq   float64 `json:"red_chisq"`
	DOF        int     `json:"dof"`
	Iterations int     `json:"iterations"`
}

// Param returns the named parameter, or false when absent.
func (r Result) Param(name string) (Param, bool) {
	for _, p := range r.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Config assembles the full per-spectrum fitting configuration. All values
// are explicit; the external CLI collaborator owns loading them.
type Config struct {
	// Continuum holds the LOWESS smoothing parameters.
	Continuum continuum.Config

	// Model is the emission-line model fitted to the continuum-subtracted
	// residual.
	Model lines.Model

	// Init holds the packed initial parameter guesses, one per model
	// parameter.
	Init []float64

	// Lower and Upper override the model's default bounds when non-nil.
	// Both must be set together.
	Lower, Upper []float64

	// Solver holds the convergence criteria.
	Solver lsq.Config
}

// Fitter fits one spectrum at a time on a fixed wavelength grid. It is
// immutable after construction and safe for concurrent use.
type Fitter struct {
	lams   []float64
	cfg    Config
	bounds lsq.Bounds
	names  []string
}

// New validates the configuration against the wavelength grid and returns a
// ready Fitter. All configuration errors surface here, before any fitting.
func New(lams []float64, cfg Config) (*Fitter, error) {
	if err := spectral.CheckGrid(lams); err != nil {
		return nil, err
	}
	if err := cfg.Continuum.Validate(); err != nil {
		return nil, fmt.Errorf("continuum config: %w", err)
	}
	if err := cfg.Model.Validate(); err != nil {
		return nil, fmt.Errorf("line model: %w", err)
	}
	if err := cfg.Solver.Validate(); err != nil {
		return nil, fmt.Errorf("solver config: %w", err)
	}

	n := cfg.Model.NParams()
	if len(cfg.Init) != n {
		return nil, fmt.Errorf("got %d initial guesses, model has %d parameters", len(cfg.Init), n)
	}

	var bounds lsq.Bounds
	if cfg.Lower != nil || cfg.Upper != nil {
		bounds = lsq.Bounds{Lower: cfg.Lower, Upper: cfg.Upper}
	} else {
		lower, upper := cfg.Model.DefaultBounds(lams)
		bounds = lsq.Bounds{Lower: lower, Upper: upper}
	}
	if err := bounds.Validate(n); err != nil {
		return nil, err
	}

	return &Fitter{
		lams:   append([]float64(nil), lams...),
		cfg:    cfg,
		bounds: bounds,
		names:  cfg.Model.ParamNames(),
	}, nil
}

// Wavelengths returns the grid the fitter was built on.
func (f *Fitter) Wavelengths() []float64 {
	return f.lams
}

// Fit runs the continuum + line pipeline on one spectrum. errs optionally
// carries the 1-sigma error spectrum used to weight the residuals; nil means
// unweighted. flux (and errs when present) must match the fitter's grid;
// a mismatch is a programmer error and returns an error immediately.
func (f *Fitter) Fit(flux, errs []float64) (Result, error) {
	if len(flux) != len(f.lams) {
		return Result{}, fmt.Errorf("flux length %d does not match grid length %d", len(flux), len(f.lams))
	}
	if errs != nil && len(errs) != len(f.lams) {
		return Result{}, fmt.Errorf("error spectrum length %d does not match grid length %d", len(errs), len(f.lams))
	}

	cont, err := continuum.Smooth(flux, f.lams, f.cfg.Continuum)
	if err != nil {
		return Result{}, err
	}

	res := Result{Continuum: cont, Status: StatusNotAttempted}
	if spectral.AllNaN(cont) {
		// No usable signal; the residual would be all-missing, so the line
		// fit is skipped without noise.
		return res, nil
	}

	// Residual (line-only) spectrum. NaN anywhere stays NaN and is dropped
	// from the fit below.
	resid := make([]float64, len(flux))
	floats.SubTo(resid, flux, cont)

	// Collect the usable samples and their weights.
	var (
		lamsFit []float64
		target  []float64
		invErr  []float64
	)
	for i, v := range resid {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		w := 1.0
		if errs != nil {
			e := errs[i]
			if math.IsNaN(e) || e <= 0 {
				continue
			}
			w = 1 / e
		}
		lamsFit = append(lamsFit, f.lams[i])
		target = append(target, v)
		invErr = append(invErr, w)
	}

	if len(target) == 0 {
		return res, nil
	}
	n := f.cfg.Model.NParams()
	if len(target) <= n {
		// Too few samples to constrain the model: the design matrix would
		// be rank-deficient.
		res.Status = StatusNumericalFailure
		return res, nil
	}

	model := f.cfg.Model
	buf := make([]float64, len(lamsFit))
	objective := func(p, out []float64) {
		// Bounds are enforced by the solver; p is always in-bounds here.
		_ = model.EvalInto(p, lamsFit, buf)
		for i := range out {
			out[i] = (buf[i] - target[i]) * invErr[i]
		}
	}

	sol, err := lsq.Solve(objective, len(target), f.cfg.Init, f.bounds, f.cfg.Solver)
	if err != nil {
		return Result{}, err
	}

	res.ChiSq = sol.ChiSq
	res.RedChiSq = sol.RedChiSq
	res.DOF = sol.DOF
	res.Iterations = sol.Iterations

	switch sol.Status {
	case lsq.StatusConverged:
		res.Status = StatusConverged
	case lsq.StatusMaxIterations:
		res.Status = StatusMaxIterations
	default:
		res.Status = StatusNumericalFailure
	}

	res.Params = make([]Param, n)
	for i := range res.Params {
		res.Params[i] = Param{
			Name:   f.names[i],
			Value:  sol.Params[i],
			Stderr: sol.Uncertainties[i],
		}
	}
	return res, nil
}
