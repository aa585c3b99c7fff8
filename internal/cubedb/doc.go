// Package cubedb persists cube-fit checkpoints in SQLite. It implements the
// cube.Store contract: one row per finished spaxel under a run ID, written
// incrementally so an interrupted run can resume without refitting.
//
// Numeric payloads (parameters, continuum estimate, chi-square statistics)
// travel as a gob+gzip blob because they legitimately contain NaN, which has
// no JSON or SQL representation. Queryable fields (status, degrees of
// freedom, iteration count) stay as plain columns.
package cubedb
