// Package spectral owns Layer 1 (Spectrum) of the cube-fitting data model.
//
// Responsibilities: spectrum/wavelength-grid validation, missing-sample
// (NaN) aware statistics, and per-spectrum signal-to-noise estimation.
// A spectrum is a []float64 of flux values paired 1:1 with a strictly
// increasing []float64 wavelength axis; NaN marks samples that were never
// observed or were rejected upstream.
//
// Dependency rule: L1 depends only on the standard library and gonum.
// No fitting, no concurrency, no persistence in this package.
package spectral
