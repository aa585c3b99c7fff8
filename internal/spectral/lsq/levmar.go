package lsq

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Objective fills resid with the m weighted residuals at parameter vector p.
// It must be deterministic and must not retain either slice.
type Objective func(p, resid []float64)

// Config holds the convergence criteria. These are explicit inputs, not
// hidden defaults: the zero value is invalid and callers should start from
// DefaultConfig.
type Config struct {
	// MaxIterations caps the number of accepted Levenberg-Marquardt steps.
	MaxIterations int // default: 200

	// TolFunc stops the fit when an accepted step changes chi-square by
	// less than TolFunc relative to its current value.
	TolFunc float64 // default: 1e-10

	// TolParam stops the fit when an accepted step moves every parameter by
	// less than TolParam relative to its magnitude.
	TolParam float64 // default: 1e-8
}

// DefaultConfig returns the canonical solver configuration.
func DefaultConfig() Config {
	return Config{MaxIterations: 200, TolFunc: 1e-10, TolParam: 1e-8}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.MaxIterations <= 0 {
		return fmt.Errorf("MaxIterations must be positive, got %d", c.MaxIterations)
	}
	if c.TolFunc <= 0 {
		return fmt.Errorf("TolFunc must be positive, got %g", c.TolFunc)
	}
	if c.TolParam <= 0 {
		return fmt.Errorf("TolParam must be positive, got %g", c.TolParam)
	}
	return nil
}

// Status classifies the outcome of a solve.
type Status int

const (
	// StatusConverged means the tolerances were met (or no further
	// improvement was numerically possible).
	StatusConverged Status = iota
	// StatusMaxIterations means the iteration budget ran out; Params carry
	// the best-effort fit.
	StatusMaxIterations
	// StatusNumericalFailure means the system was singular or produced
	// non-finite values; Params carry the last finite point.
	StatusNumericalFailure
)

func (s Status) String() string {
	switch s {
	case StatusConverged:
		return "converged"
	case StatusMaxIterations:
		return "max-iterations"
	case StatusNumericalFailure:
		return "numerical-failure"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result holds the fit outcome.
type Result struct {
	Params        []float64
	Uncertainties []float64 // sqrt of covariance diagonal; NaN when unavailable
	Status        Status
	ChiSq         float64
	RedChiSq      float64 // ChiSq / DOF; NaN when DOF <= 0
	DOF           int     // residual count minus parameter count
	Iterations    int     // accepted steps
}

// Damping schedule constants. lambdaMax is the point where the trust region
// has collapsed to nothing and no further improvement is possible.
const (
	lambdaInit = 1e-3
	lambdaUp   = 10
	lambdaDown = 10
	lambdaMin  = 1e-12
	lambdaMax  = 1e12
)

// Solve minimises the sum of squared residuals of f over p, starting from p0
// and keeping every evaluation inside bounds.
//
// m is the number of residuals f produces. Solve returns an error only for
// malformed input; numerical trouble is reported through Result.Status.
func Solve(f Objective, m int, p0 []float64, bounds Bounds, cfg Config) (Result, error) {
	n := len(p0)
	if n == 0 {
		return Result{}, fmt.Errorf("no parameters to fit")
	}
	if m < 1 {
		return Result{}, fmt.Errorf("residual count must be positive, got %d", m)
	}
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if err := bounds.Validate(n); err != nil {
		return Result{}, err
	}

	p := append([]float64(nil), p0...)
	bounds.Clip(p)

	dof := m - n

	resid := make([]float64, m)
	f(p, resid)
	chi2 := sumSq(resid)
	if !isFinite(chi2) {
		return failure(p, n, chi2, dof, 0), nil
	}

	var (
		jac    = mat.NewDense(m, n, nil)
		jtj    = mat.NewSymDense(n, nil)
		jtr    = make([]float64, n)
		trial  = make([]float64, n)
		tResid = make([]float64, m)
		delta  = mat.NewVecDense(n, nil)
		damped = mat.NewSymDense(n, nil)
		chol   mat.Cholesky
	)

	lambda := lambdaInit
	iters := 0

	for iters < cfg.MaxIterations {
		if err := jacobian(f, p, bounds, resid, jac); err != nil {
			return failure(p, n, chi2, dof, iters), nil
		}

		// Normal equations: (J^T J + lambda diag(J^T J)) delta = -J^T r.
		jtj.SymOuterK(1, jac.T())
		for j := 0; j < n; j++ {
			var s float64
			for i := 0; i < m; i++ {
				s += jac.At(i, j) * resid[i]
			}
			jtr[j] = s
			if !isFinite(s) {
				return failure(p, n, chi2, dof, iters), nil
			}
		}

		accepted := false
		for lambda <= lambdaMax {
			damped.CopySym(jtj)
			for j := 0; j < n; j++ {
				d := jtj.At(j, j)
				if d == 0 {
					d = 1 // flat direction; plain Tikhonov term keeps it solvable
				}
				damped.SetSym(j, j, jtj.At(j, j)+lambda*d)
			}
			if ok := chol.Factorize(damped); !ok {
				lambda *= lambdaUp
				continue
			}
			if err := chol.SolveVecTo(delta, mat.NewVecDense(n, jtr)); err != nil {
				lambda *= lambdaUp
				continue
			}

			for j := 0; j < n; j++ {
				trial[j] = p[j] - delta.AtVec(j)
			}
			bounds.Clip(trial)

			f(trial, tResid)
			tChi2 := sumSq(tResid)
			if !isFinite(tChi2) || tChi2 >= chi2 {
				lambda *= lambdaUp
				continue
			}

			// Accepted step.
			stepConverged := maxRelStep(p, trial) <= cfg.TolParam
			funcConverged := chi2-tChi2 <= cfg.TolFunc*math.Max(chi2, math.SmallestNonzeroFloat64)

			copy(p, trial)
			copy(resid, tResid)
			chi2 = tChi2
			iters++
			if lambda > lambdaMin {
				lambda /= lambdaDown
			}
			accepted = true

			if stepConverged || funcConverged {
				return finish(f, p, bounds, resid, chi2, dof, iters, StatusConverged), nil
			}
			break
		}

		if !accepted {
			// The trust region collapsed without finding a downhill step:
			// the current point is a minimum to machine precision.
			return finish(f, p, bounds, resid, chi2, dof, iters, StatusConverged), nil
		}
	}

	return finish(f, p, bounds, resid, chi2, dof, iters, StatusMaxIterations), nil
}

// jacobian fills jac with forward-difference derivatives of f at p, keeping
// every evaluation inside bounds (stepping backward at an upper bound).
func jacobian(f Objective, p []float64, bounds Bounds, resid []float64, jac *mat.Dense) error {
	m, n := jac.Dims()
	pert := make([]float64, n)
	fPert := make([]float64, m)

	for j := 0; j < n; j++ {
		h := math.Sqrt(machEps) * math.Max(math.Abs(p[j]), 1)
		copy(pert, p)
		pert[j] = p[j] + h
		if pert[j] > bounds.Upper[j] {
			h = -h
			pert[j] = p[j] + h
			if pert[j] < bounds.Lower[j] {
				return fmt.Errorf("parameter %d pinned by bounds", j)
			}
		}
		// Use the actually representable step.
		h = pert[j] - p[j]
		if h == 0 {
			return fmt.Errorf("parameter %d step underflow", j)
		}

		f(pert, fPert)
		for i := 0; i < m; i++ {
			d := (fPert[i] - resid[i]) / h
			if !isFinite(d) {
				return fmt.Errorf("non-finite derivative at (%d,%d)", i, j)
			}
			jac.Set(i, j, d)
		}
	}
	return nil
}

// finish assembles the final Result, deriving uncertainties from the
// covariance of the unweighted normal equations scaled by reduced chi-square.
func finish(f Objective, p []float64, bounds Bounds, resid []float64, chi2 float64, dof, iters int, status Status) Result {
	n := len(p)
	res := Result{
		Params:        append([]float64(nil), p...),
		Uncertainties: nanSlice(n),
		Status:        status,
		ChiSq:         chi2,
		RedChiSq:      math.NaN(),
		DOF:           dof,
		Iterations:    iters,
	}
	if dof > 0 {
		res.RedChiSq = chi2 / float64(dof)
	}

	m := len(resid)
	jac := mat.NewDense(m, n, nil)
	if err := jacobian(f, p, bounds, resid, jac); err != nil {
		return res
	}
	jtj := mat.NewSymDense(n, nil)
	jtj.SymOuterK(1, jac.T())

	var chol mat.Cholesky
	if ok := chol.Factorize(jtj); !ok {
		return res
	}
	var cov mat.SymDense
	if err := chol.InverseTo(&cov); err != nil {
		return res
	}

	scale := 1.0
	if dof > 0 {
		scale = res.RedChiSq
	}
	for j := 0; j < n; j++ {
		v := cov.At(j, j) * scale
		if v >= 0 {
			res.Uncertainties[j] = math.Sqrt(v)
		}
	}
	return res
}

func failure(p []float64, n int, chi2 float64, dof, iters int) Result {
	return Result{
		Params:        append([]float64(nil), p...),
		Uncertainties: nanSlice(n),
		Status:        StatusNumericalFailure,
		ChiSq:         chi2,
		RedChiSq:      math.NaN(),
		DOF:           dof,
		Iterations:    iters,
	}
}

const machEps = 2.220446049250313e-16

func sumSq(x []float64) float64 {
	var s float64
	for _, v := range x {
		s += v * v
	}
	return s
}

func maxRelStep(p, trial []float64) float64 {
	var worst float64
	for j := range p {
		step := math.Abs(trial[j]-p[j]) / math.Max(math.Abs(p[j]), 1)
		if step > worst {
			worst = step
		}
	}
	return worst
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
