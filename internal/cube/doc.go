// Package cube owns Layer 4 (Cube) of the cube-fitting data model: the
// spectral data cube, the dense per-spaxel result grid, and the parallel
// driver that fans fits out over a fixed worker pool.
//
// Responsibilities:
//   - Cube: validated flat storage for flux (and optional error) spectra on
//     a shared wavelength grid, with copying spaxel extraction.
//   - CubeResult: deterministic index-keyed aggregation of per-spaxel fit
//     results, plus derived map views (parameter, flux, velocity, status).
//   - Driver: worker-pool execution with cooperative cancellation,
//     per-spaxel panic containment and optional checkpoint persistence.
//
// Partial failure is the normal case: one bad spaxel never aborts the run,
// it lands in the result grid as its own status.
//
// Dependency rule: L4 may depend on L1-L3 (spectral, fitter) and on the
// Store contract it declares; persistence implementations live below in
// cubedb and are injected.
package cube
