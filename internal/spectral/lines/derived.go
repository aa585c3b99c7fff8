package lines

import (
	"math"

	"github.com/ifu-data/cubefit/internal/spectral"
)

// Derived quantities from fitted component parameters, matching the maps the
// downstream serialisation collaborator assembles: integrated flux and
// velocity offset.

// Flux returns the integrated flux of a Gaussian-core component,
// sqrt(2*pi) * amp * sigma.
func Flux(amp, sigma float64) float64 {
	return math.Sqrt(2*math.Pi) * amp * sigma
}

// FluxErr propagates the amplitude and sigma uncertainties into the
// integrated flux uncertainty. Parameter covariance is neglected.
func FluxErr(amp, ampErr, sigma, sigmaErr float64) float64 {
	return math.Sqrt(2*math.Pi) * math.Hypot(sigma*ampErr, amp*sigmaErr)
}

// Velocity converts a fitted line centre to a velocity offset in km/s
// relative to the component's rest wavelength. Returns NaN when the
// component has no rest wavelength.
func Velocity(center, restLam float64) float64 {
	if restLam <= 0 {
		return math.NaN()
	}
	return spectral.SpeedOfLight * (center - restLam) / restLam
}

// VelocityErr converts a centre uncertainty to a velocity uncertainty in
// km/s. Returns NaN when the component has no rest wavelength.
func VelocityErr(centerErr, restLam float64) float64 {
	if restLam <= 0 {
		return math.NaN()
	}
	return spectral.SpeedOfLight * centerErr / restLam
}
