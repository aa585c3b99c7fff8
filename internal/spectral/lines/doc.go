// Package lines owns the emission-line model of the cube-fitting data model:
// parametrised multi-component spectral-line profiles evaluated on a
// wavelength grid.
//
// A model is a sum of one or more single-line components, either Gaussian or
// Gauss-Hermite with h3/h4 shape terms, plus an optional constant offset.
// Parameter bounds (amplitude >= 0, width > 0, centre inside the observed
// window) are hard constraints: the solver clips every proposal to bounds
// before the model is evaluated.
//
// Dependency rule: L2 may depend on L1 (spectral), never on the fitter or
// the cube driver.
package lines
