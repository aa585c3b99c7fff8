package lsq

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ifu-data/cubefit/internal/testutil"
)

// gaussianObjective builds residuals model(p) - data for a single Gaussian
// on the given grid.
func gaussianObjective(x, data []float64) Objective {
	return func(p, resid []float64) {
		for i, xi := range x {
			w := (xi - p[1]) / p[2]
			resid[i] = p[0]*math.Exp(-0.5*w*w) - data[i]
		}
	}
}

func freeBounds(n int) Bounds {
	lower := make([]float64, n)
	upper := make([]float64, n)
	for i := 0; i < n; i++ {
		lower[i] = math.Inf(-1)
		upper[i] = math.Inf(1)
	}
	return Bounds{Lower: lower, Upper: upper}
}

func TestSolveRecoversGaussian(t *testing.T) {
	t.Parallel()

	x := testutil.Linspace(-10, 10, 101)
	data := testutil.Gaussian(x, 5, 1.5, 2)

	b := Bounds{
		Lower: []float64{0, -10, 1e-6},
		Upper: []float64{math.Inf(1), 10, 20},
	}
	res, err := Solve(gaussianObjective(x, data), len(x), []float64{1, 0, 3}, b, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, StatusConverged, res.Status)
	assert.InDelta(t, 5.0, res.Params[0], 1e-6)
	assert.InDelta(t, 1.5, res.Params[1], 1e-6)
	assert.InDelta(t, 2.0, res.Params[2], 1e-6)
	assert.InDelta(t, 0.0, res.ChiSq, 1e-10)
	assert.Equal(t, len(x)-3, res.DOF)
	assert.Greater(t, res.Iterations, 0)
}

func TestSolveLinearModelIsExact(t *testing.T) {
	t.Parallel()

	x := testutil.Linspace(0, 9, 10)
	data := make([]float64, len(x))
	for i, xi := range x {
		data[i] = 2 + 3*xi
	}
	f := func(p, resid []float64) {
		for i, xi := range x {
			resid[i] = p[0] + p[1]*xi - data[i]
		}
	}

	res, err := Solve(f, len(x), []float64{0, 0}, freeBounds(2), DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, StatusConverged, res.Status)
	assert.InDelta(t, 2.0, res.Params[0], 1e-8)
	assert.InDelta(t, 3.0, res.Params[1], 1e-8)
}

func TestSolveClipsProposalsToBounds(t *testing.T) {
	t.Parallel()

	x := testutil.Linspace(-5, 5, 51)
	// An absorption dip: the best unconstrained amplitude is negative.
	data := testutil.Gaussian(x, -4, 0, 1)

	b := Bounds{
		Lower: []float64{0, -5, 1e-6},
		Upper: []float64{math.Inf(1), 5, 10},
	}
	res, err := Solve(gaussianObjective(x, data), len(x), []float64{1, 0, 1}, b, DefaultConfig())
	require.NoError(t, err)

	// The amplitude must end up pinned at zero, never negative.
	assert.GreaterOrEqual(t, res.Params[0], 0.0)
	assert.LessOrEqual(t, res.Params[0], 1e-6)
	assert.True(t, b.In(res.Params))
}

func TestSolveStartOutsideBoundsIsClipped(t *testing.T) {
	t.Parallel()

	x := testutil.Linspace(-10, 10, 101)
	data := testutil.Gaussian(x, 5, 1.5, 2)

	b := Bounds{
		Lower: []float64{0, -10, 1e-6},
		Upper: []float64{math.Inf(1), 10, 20},
	}
	// Start with sigma below its lower bound and centre past the window.
	res, err := Solve(gaussianObjective(x, data), len(x), []float64{1, 40, -3}, b, DefaultConfig())
	require.NoError(t, err)
	assert.True(t, b.In(res.Params))
}

func TestSolveNumericalFailure(t *testing.T) {
	t.Parallel()

	nan := func(p, resid []float64) {
		for i := range resid {
			resid[i] = math.NaN()
		}
	}
	res, err := Solve(nan, 10, []float64{1, 2}, freeBounds(2), DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, StatusNumericalFailure, res.Status)
	for _, u := range res.Uncertainties {
		assert.True(t, math.IsNaN(u))
	}
}

func TestSolveMaxIterations(t *testing.T) {
	t.Parallel()

	x := testutil.Linspace(-10, 10, 101)
	data := testutil.Gaussian(x, 5, 1.5, 2)

	cfg := DefaultConfig()
	cfg.MaxIterations = 1
	res, err := Solve(gaussianObjective(x, data), len(x), []float64{1, 0, 3}, freeBounds(3), cfg)
	require.NoError(t, err)
	assert.Equal(t, StatusMaxIterations, res.Status)
	assert.Equal(t, 1, res.Iterations)
	assert.Len(t, res.Params, 3) // best-effort parameters still carried
}

func TestSolveConfigAndInputErrors(t *testing.T) {
	t.Parallel()

	f := func(p, resid []float64) {}

	_, err := Solve(f, 10, nil, Bounds{}, DefaultConfig())
	assert.Error(t, err)

	_, err = Solve(f, 0, []float64{1}, freeBounds(1), DefaultConfig())
	assert.Error(t, err)

	_, err = Solve(f, 10, []float64{1}, freeBounds(2), DefaultConfig())
	assert.Error(t, err)

	bad := Bounds{Lower: []float64{1}, Upper: []float64{0}}
	_, err = Solve(f, 10, []float64{1}, bad, DefaultConfig())
	assert.Error(t, err)

	cfg := Config{MaxIterations: 0, TolFunc: 1e-10, TolParam: 1e-8}
	_, err = Solve(f, 10, []float64{1}, freeBounds(1), cfg)
	assert.Error(t, err)
}

func TestSolveIsDeterministic(t *testing.T) {
	t.Parallel()

	x := testutil.Linspace(-10, 10, 101)
	data := testutil.Gaussian(x, 5, 1.5, 2)
	b := Bounds{
		Lower: []float64{0, -10, 1e-6},
		Upper: []float64{math.Inf(1), 10, 20},
	}

	run := func() Result {
		res, err := Solve(gaussianObjective(x, data), len(x), []float64{1, 0, 3}, b, DefaultConfig())
		require.NoError(t, err)
		return res
	}

	a, c := run(), run()
	if diff := cmp.Diff(a, c); diff != "" {
		t.Fatalf("solver output differs between identical runs:\n%s", diff)
	}
}

func TestUncertaintiesScaleWithNoise(t *testing.T) {
	t.Parallel()

	x := testutil.Linspace(-10, 10, 201)
	data := testutil.Gaussian(x, 5, 0, 2)
	// Deterministic small perturbation so chi-square is nonzero.
	for i := range data {
		data[i] += 0.01 * math.Sin(float64(i))
	}

	b := Bounds{
		Lower: []float64{0, -10, 1e-6},
		Upper: []float64{math.Inf(1), 10, 20},
	}
	res, err := Solve(gaussianObjective(x, data), len(x), []float64{1, 0, 3}, b, DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, StatusConverged, res.Status)

	for _, u := range res.Uncertainties {
		assert.False(t, math.IsNaN(u))
		assert.Greater(t, u, 0.0)
		assert.Less(t, u, 0.1) // small noise, small uncertainty
	}
	assert.Greater(t, res.RedChiSq, 0.0)
}

func BenchmarkSolve(b *testing.B) {
	x := testutil.Linspace(-10, 10, 301)
	data := testutil.Gaussian(x, 5, 1.5, 2)
	bounds := Bounds{
		Lower: []float64{0, -10, 1e-6},
		Upper: []float64{math.Inf(1), 10, 20},
	}
	cfg := DefaultConfig()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Solve(gaussianObjective(x, data), len(x), []float64{1, 0, 3}, bounds, cfg); err != nil {
			b.Fatal(err)
		}
	}
}

func TestBoundsClip(t *testing.T) {
	t.Parallel()

	b := Bounds{Lower: []float64{0, -1}, Upper: []float64{2, 1}}
	p := []float64{-5, 5}
	b.Clip(p)
	assert.Equal(t, []float64{0, 1}, p)
	assert.True(t, b.In(p))
	assert.False(t, b.In([]float64{3, 0}))
}
