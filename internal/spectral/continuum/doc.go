// Package continuum owns Layer 2 (Continuum) of the cube-fitting data model:
// robust locally weighted regression (Cleveland's LOWESS) used to estimate
// the stellar continuum of a single spectrum.
//
// The smoother must tolerate strong localised deviations (narrow emission
// and absorption features, cosmic-ray hits, hot pixels) without being told
// where they are. Robustness reweighting passes down-weight high-residual
// samples so the baseline follows the broad continuum only.
//
// Dependency rule: L2 may depend on L1 (spectral), never on the fitter or
// the cube driver.
package continuum
