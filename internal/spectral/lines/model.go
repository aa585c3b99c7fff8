package lines

import (
	"fmt"
	"math"
)

// Component describes one emission line in a model.
type Component struct {
	// Name labels the line in parameter names and result maps, e.g. "ha",
	// "n2_6583".
	Name string

	// Profile selects the functional form. Zero value is Gaussian.
	Profile ProfileKind

	// RestLam is the rest-frame reference wavelength used for velocity
	// conversion of the fitted centre. Zero means no velocity conversion.
	RestLam float64
}

// Model is a sum of line components plus an optional constant offset term.
// Parameters are packed per component in declaration order (amp, center,
// sigma, then h3 and h4 where present), with the offset, when fitted, as the
// final parameter.
type Model struct {
	Components []Component

	// FitOffset adds a constant pedestal as the last free parameter. The
	// continuum is normally removed before the line fit, so this defaults
	// to off; it absorbs small residual baseline errors when enabled.
	FitOffset bool
}

// NParams returns the total number of free parameters of the model.
func (m Model) NParams() int {
	n := 0
	for _, c := range m.Components {
		n += c.Profile.NParams()
	}
	if m.FitOffset {
		n++
	}
	return n
}

// ParamNames returns the packed parameter names, e.g. "amp_ha", "center_ha",
// "sigma_ha", and "offset" last when fitted. Unnamed components use their
// index.
func (m Model) ParamNames() []string {
	names := make([]string, 0, m.NParams())
	for i, c := range m.Components {
		label := c.Name
		if label == "" {
			label = fmt.Sprintf("%d", i)
		}
		names = append(names, "amp_"+label, "center_"+label, "sigma_"+label)
		if c.Profile == GaussHermite {
			names = append(names, "h3_"+label, "h4_"+label)
		}
	}
	if m.FitOffset {
		names = append(names, "offset")
	}
	return names
}

// Validate checks that the model has at least one component and unique
// parameter names.
func (m Model) Validate() error {
	if len(m.Components) == 0 {
		return fmt.Errorf("model has no line components")
	}
	seen := make(map[string]bool)
	for _, name := range m.ParamNames() {
		if seen[name] {
			return fmt.Errorf("duplicate parameter name %q", name)
		}
		seen[name] = true
	}
	return nil
}

// EvalInto evaluates the model with packed parameters p at every wavelength,
// writing into out. out must have len(lams).
func (m Model) EvalInto(p, lams, out []float64) error {
	if len(p) != m.NParams() {
		return fmt.Errorf("got %d parameters, model has %d", len(p), m.NParams())
	}
	if len(out) != len(lams) {
		return fmt.Errorf("output length %d does not match grid length %d", len(out), len(lams))
	}

	var offset float64
	if m.FitOffset {
		offset = p[len(p)-1]
	}
	for i := range out {
		out[i] = offset
	}

	j := 0
	for _, c := range m.Components {
		switch c.Profile {
		case GaussHermite:
			amp, center, sigma, h3, h4 := p[j], p[j+1], p[j+2], p[j+3], p[j+4]
			for i, x := range lams {
				out[i] += gaussHermite(x, amp, center, sigma, h3, h4)
			}
			j += 5
		default:
			amp, center, sigma := p[j], p[j+1], p[j+2]
			for i, x := range lams {
				out[i] += gaussian(x, amp, center, sigma)
			}
			j += 3
		}
	}
	return nil
}

// Eval evaluates the model on a fresh slice.
func (m Model) Eval(p, lams []float64) ([]float64, error) {
	out := make([]float64, len(lams))
	if err := m.EvalInto(p, lams, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Default bound constants. Sigma may never reach zero; h3/h4 beyond ~0.4
// produce profiles with negative lobes that the fit should not explore.
const (
	minSigma = 1e-6
	maxHerm  = 0.4
)

// DefaultBounds returns per-parameter lower and upper bounds enforcing the
// hard constraints on the observed window [lams[0], lams[len-1]]:
// amplitude >= 0, sigma > 0 and no wider than the window, centre inside the
// window, |h3|,|h4| <= 0.4, offset unconstrained.
func (m Model) DefaultBounds(lams []float64) (lower, upper []float64) {
	lamLo, lamHi := lams[0], lams[len(lams)-1]
	width := lamHi - lamLo

	lower = make([]float64, 0, m.NParams())
	upper = make([]float64, 0, m.NParams())
	for _, c := range m.Components {
		lower = append(lower, 0, lamLo, minSigma)
		upper = append(upper, math.Inf(1), lamHi, width)
		if c.Profile == GaussHermite {
			lower = append(lower, -maxHerm, -maxHerm)
			upper = append(upper, maxHerm, maxHerm)
		}
	}
	if m.FitOffset {
		lower = append(lower, math.Inf(-1))
		upper = append(upper, math.Inf(1))
	}
	return lower, upper
}
