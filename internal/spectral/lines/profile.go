package lines

import "math"

// ProfileKind selects the functional form of a single line component.
type ProfileKind int

const (
	// Gaussian is amp * exp(-(x-center)^2 / (2*sigma^2)).
	Gaussian ProfileKind = iota
	// GaussHermite extends Gaussian with h3 (skew) and h4 (kurtosis) terms
	// of the Gauss-Hermite series. With h3 = h4 = 0 it reduces exactly to
	// Gaussian.
	GaussHermite
)

// NParams returns the number of free parameters per component of this kind.
func (k ProfileKind) NParams() int {
	if k == GaussHermite {
		return 5 // amp, center, sigma, h3, h4
	}
	return 3 // amp, center, sigma
}

func (k ProfileKind) String() string {
	if k == GaussHermite {
		return "gauss-hermite"
	}
	return "gaussian"
}

// gaussian evaluates a Gaussian profile at x.
func gaussian(x, amp, center, sigma float64) float64 {
	w := (x - center) / sigma
	return amp * math.Exp(-0.5*w*w)
}

// gaussHermite evaluates a Gauss-Hermite profile at x using the van der
// Marel & Franx normalisation of the H3 and H4 polynomials.
func gaussHermite(x, amp, center, sigma, h3, h4 float64) float64 {
	w := (x - center) / sigma
	h3term := (2*math.Sqrt2*w*w*w - 3*math.Sqrt2*w) / math.Sqrt(6)
	h4term := (4*w*w*w*w - 12*w*w + 3) / math.Sqrt(24)
	return amp * math.Exp(-0.5*w*w) * (1 + h3*h3term + h4*h4term)
}
