package lsq

import "fmt"

// Bounds holds per-parameter lower and upper limits. Infinities disable a
// limit. Bounds are hard constraints: Clip is applied to every proposal
// before the objective is evaluated.
type Bounds struct {
	Lower []float64
	Upper []float64
}

// Validate checks the bounds against a parameter count.
func (b Bounds) Validate(n int) error {
	if len(b.Lower) != n || len(b.Upper) != n {
		return fmt.Errorf("bounds length %d/%d does not match %d parameters",
			len(b.Lower), len(b.Upper), n)
	}
	for i := range b.Lower {
		if b.Lower[i] > b.Upper[i] {
			return fmt.Errorf("parameter %d: lower bound %v exceeds upper bound %v",
				i, b.Lower[i], b.Upper[i])
		}
	}
	return nil
}

// Clip forces every parameter of p inside the bounds, in place.
func (b Bounds) Clip(p []float64) {
	for i := range p {
		if p[i] < b.Lower[i] {
			p[i] = b.Lower[i]
		}
		if p[i] > b.Upper[i] {
			p[i] = b.Upper[i]
		}
	}
}

// In reports whether every parameter of p lies inside the bounds.
func (b Bounds) In(p []float64) bool {
	for i := range p {
		if p[i] < b.Lower[i] || p[i] > b.Upper[i] {
			return false
		}
	}
	return true
}
