// Package fitter owns Layer 3 (Spectrum) of the cube-fitting data model:
// the single-spectrum pipeline that estimates a continuum baseline, subtracts
// it, and fits the configured emission-line model to the residual by bounded
// nonlinear least squares.
//
// Every numeric outcome is data: an all-missing spectrum produces a
// NotAttempted result, a solver that runs out of budget produces a
// MaxIterations result carrying best-effort parameters, and a singular
// system produces a NumericalFailure sentinel. Results are immutable once
// returned and safe to hand across goroutines.
//
// Dependency rule: L3 may depend on L1-L2 (spectral, continuum, lines, lsq),
// never on the cube driver or persistence.
package fitter
