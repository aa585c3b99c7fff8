package cube

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ifu-data/cubefit/internal/monitoring"
	"github.com/ifu-data/cubefit/internal/spectral/continuum"
	"github.com/ifu-data/cubefit/internal/spectral/fitter"
	"github.com/ifu-data/cubefit/internal/spectral/lines"
	"github.com/ifu-data/cubefit/internal/spectral/lsq"
	"github.com/ifu-data/cubefit/internal/testutil"
)

var driverGrid = testutil.Linspace(6400, 6699, 300)

func driverFitter(t *testing.T) *fitter.Fitter {
	t.Helper()
	f, err := fitter.New(driverGrid, fitter.Config{
		Continuum: continuum.Config{Fraction: 0.25, Iterations: 5},
		Model:     lines.Model{Components: []lines.Component{{Name: "ha", RestLam: 6562.8}}},
		Init:      []float64{1, 6560, 4},
		Solver:    lsq.DefaultConfig(),
	})
	require.NoError(t, err)
	return f
}

// testCube builds an nx*ny cube of flat continua with one emission line per
// spaxel, amplitude varying with the spaxel index.
func testCube(t *testing.T, nx, ny int) *Cube {
	t.Helper()
	c, err := Blank(nx, ny, driverGrid)
	require.NoError(t, err)
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			flux := testutil.AddSlices(
				testutil.Constant(10, len(driverGrid)),
				testutil.Gaussian(driverGrid, spaxelAmp(c, Index{X: x, Y: y}), 6563, 1.5),
			)
			for i := range flux {
				flux[i] += 0.3 * math.Sin(1.7*float64(i))
			}
			require.NoError(t, c.SetSpectrum(Index{X: x, Y: y}, flux))
		}
	}
	return c
}

func spaxelAmp(c *Cube, ix Index) float64 {
	return 4 + 0.5*float64(ix.Y*c.NX+ix.X)
}

// fakeStore is an in-memory checkpoint store. The driver writes from a
// single collector goroutine, so no locking is needed here.
type fakeStore struct {
	saved  map[string]map[Index]fitter.Result
	saves  int
	onSave func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: make(map[string]map[Index]fitter.Result)}
}

func (s *fakeStore) SaveResult(runID string, ix Index, res fitter.Result) error {
	if s.saved[runID] == nil {
		s.saved[runID] = make(map[Index]fitter.Result)
	}
	s.saved[runID][ix] = res
	s.saves++
	if s.onSave != nil {
		s.onSave()
	}
	return nil
}

func (s *fakeStore) Completed(runID string) (map[Index]fitter.Result, error) {
	out := make(map[Index]fitter.Result, len(s.saved[runID]))
	for ix, res := range s.saved[runID] {
		out[ix] = res
	}
	return out, nil
}

type failingStore struct{ fakeStore }

func (s *failingStore) Completed(string) (map[Index]fitter.Result, error) {
	return nil, fmt.Errorf("store offline")
}

func TestRunFitsEverySpaxel(t *testing.T) {
	defer monitoring.Mute()()

	c := testCube(t, 2, 2)
	d, err := NewDriver(driverFitter(t), Config{Workers: 2})
	require.NoError(t, err)

	res, err := d.Run(context.Background(), c)
	require.NoError(t, err)
	require.NoError(t, res.Validate())

	counts := res.StatusCounts()
	assert.Equal(t, 4, counts[fitter.StatusConverged])

	amps := res.ParamMap("amp_ha")
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			ix := Index{X: x, Y: y}
			assert.InDelta(t, spaxelAmp(c, ix), amps[y*2+x], 0.4, "spaxel %v", ix)
		}
	}
}

func TestRunIsDeterministicAcrossWorkerCounts(t *testing.T) {
	defer monitoring.Mute()()

	c := testCube(t, 3, 2)
	// One empty spaxel keeps the NaN paths in play.
	require.NoError(t, c.SetSpectrum(Index{X: 2, Y: 1}, testutil.NaNs(len(driverGrid))))

	run := func(workers int) *CubeResult {
		d, err := NewDriver(driverFitter(t), Config{Workers: workers})
		require.NoError(t, err)
		res, err := d.Run(context.Background(), c)
		require.NoError(t, err)
		return res
	}

	serial, parallel := run(1), run(4)
	if diff := cmp.Diff(serial, parallel, cmpopts.EquateNaNs()); diff != "" {
		t.Fatalf("result grid depends on worker count:\n%s", diff)
	}
}

func TestRunEmptySpaxelIsNotAttempted(t *testing.T) {
	defer monitoring.Mute()()

	c := testCube(t, 2, 1)
	require.NoError(t, c.SetSpectrum(Index{X: 1, Y: 0}, testutil.NaNs(len(driverGrid))))

	d, err := NewDriver(driverFitter(t), Config{Workers: 2})
	require.NoError(t, err)
	res, err := d.Run(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, fitter.StatusConverged, res.At(Index{X: 0, Y: 0}).Status)
	assert.Equal(t, fitter.StatusNotAttempted, res.At(Index{X: 1, Y: 0}).Status)
}

func TestRunSNRGateSkipsFaintSpaxels(t *testing.T) {
	defer monitoring.Mute()()

	c := testCube(t, 2, 1)
	// A faint spaxel: pure ripple around zero, continuum SNR near zero.
	faint := make([]float64, len(driverGrid))
	for i := range faint {
		faint[i] = 0.3 * math.Sin(1.7*float64(i))
	}
	require.NoError(t, c.SetSpectrum(Index{X: 1, Y: 0}, faint))

	d, err := NewDriver(driverFitter(t), Config{
		Workers:         2,
		MinContinuumSNR: 5,
		SNRWindow:       [2]float64{6400, 6500},
	})
	require.NoError(t, err)
	res, err := d.Run(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, fitter.StatusConverged, res.At(Index{X: 0, Y: 0}).Status)
	assert.Equal(t, fitter.StatusNotAttempted, res.At(Index{X: 1, Y: 0}).Status)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	defer monitoring.Mute()()

	c := testCube(t, 2, 2)
	d, err := NewDriver(driverFitter(t), Config{Workers: 2})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := d.Run(ctx, c)
	assert.ErrorIs(t, err, context.Canceled)

	// The grid stays complete: every untouched spaxel is the sentinel.
	require.NotNil(t, res)
	require.NoError(t, res.Validate())
	assert.Equal(t, 4, res.StatusCounts()[fitter.StatusNotAttempted])
}

func TestRunCancelledMidway(t *testing.T) {
	defer monitoring.Mute()()

	c := testCube(t, 4, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newFakeStore()
	store.onSave = func() {
		if store.saves == 3 {
			cancel()
		}
	}

	d, err := NewDriver(driverFitter(t), Config{Workers: 2, Store: store})
	require.NoError(t, err)
	res, err := d.Run(ctx, c)
	assert.ErrorIs(t, err, context.Canceled)

	require.NotNil(t, res)
	require.NoError(t, res.Validate())

	counts := res.StatusCounts()
	assert.GreaterOrEqual(t, counts[fitter.StatusConverged], 3)
	assert.Greater(t, counts[fitter.StatusNotAttempted], 0)
	assert.Equal(t, 16, counts[fitter.StatusConverged]+counts[fitter.StatusNotAttempted])
}

func TestRunCheckpointAndResume(t *testing.T) {
	defer monitoring.Mute()()

	c := testCube(t, 2, 2)
	store := newFakeStore()

	d1, err := NewDriver(driverFitter(t), Config{Workers: 2, Store: store})
	require.NoError(t, err)
	first, err := d1.Run(context.Background(), c)
	require.NoError(t, err)
	require.NotEmpty(t, first.RunID)
	assert.Equal(t, 4, store.saves)

	// Resuming a finished run refits nothing and reproduces the grid.
	d2, err := NewDriver(driverFitter(t), Config{Workers: 2, Store: store, RunID: first.RunID})
	require.NoError(t, err)
	second, err := d2.Run(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, 4, store.saves, "resume must not refit completed spaxels")
	if diff := cmp.Diff(first, second, cmpopts.EquateNaNs()); diff != "" {
		t.Fatalf("resumed grid differs from the original:\n%s", diff)
	}
}

func TestRunResumeLoadFailure(t *testing.T) {
	defer monitoring.Mute()()

	c := testCube(t, 2, 1)
	d, err := NewDriver(driverFitter(t), Config{Store: &failingStore{}, RunID: "run-1"})
	require.NoError(t, err)

	_, err = d.Run(context.Background(), c)
	assert.ErrorContains(t, err, "store offline")
}

func TestRunGridMismatch(t *testing.T) {
	defer monitoring.Mute()()

	other, err := Blank(2, 2, testutil.Linspace(5000, 5099, 100))
	require.NoError(t, err)

	d, err := NewDriver(driverFitter(t), Config{})
	require.NoError(t, err)

	_, err = d.Run(context.Background(), other)
	assert.Error(t, err)

	_, err = d.Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestNewDriverValidation(t *testing.T) {
	t.Parallel()

	_, err := NewDriver(nil, Config{})
	assert.Error(t, err)

	f := driverFitter(t)

	_, err = NewDriver(f, Config{Workers: -1})
	assert.Error(t, err)

	_, err = NewDriver(f, Config{MinContinuumSNR: -1})
	assert.Error(t, err)

	_, err = NewDriver(f, Config{MinContinuumSNR: 2, SNRWindow: [2]float64{10, 5}})
	assert.Error(t, err)

	_, err = NewDriver(f, Config{ProgressEvery: -1})
	assert.Error(t, err)
}
