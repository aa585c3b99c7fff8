// Package lsq implements the bounded nonlinear least-squares solver used for
// emission-line fitting: Levenberg-Marquardt with a forward-difference
// Jacobian, hard parameter bounds clipped on every proposal, and explicit
// convergence criteria supplied by the caller.
//
// Numerical trouble is data, not control flow: a singular or ill-conditioned
// system yields a result with StatusNumericalFailure, and an exhausted
// iteration budget yields StatusMaxIterations carrying the best-effort
// parameters. Only malformed input (bad bounds, bad config, length
// mismatches) returns an error, and it does so before any fitting starts.
//
// Dependency rule: L2, depends only on the standard library and gonum/mat.
package lsq
