package shaper

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// NoiseModelParams is the number of free parameters of NoiseModel.
const NoiseModelParams = 3

// NoiseModel is the resolution (FWHM) expected at peaking time t in seconds:
// leakage shot noise p0*t, series thermal noise p1/t and a constant floor p2.
func NoiseModel(t float64, p []float64) float64 {
	return math.Sqrt(p[0]*t + p[1]/t + p[2])
}

// Constants are the detector and preamplifier constants used to translate the
// fit parameters into physical quantities.
type Constants struct {
	Q    float64 // elementary charge, C
	K    float64 // Boltzmann constant, J/K
	Eps  float64 // ionization energy of silicon, eV
	Rp   float64 // parallel resistance of the preamplifier, Ohm
	Gm   float64 // FET transconductance, S
	Beta float64
	Fi   float64 // noise form factors
	Fv   float64
	Fvf  float64
	Ctot float64 // total input capacitance, F
}

func DefaultConstants() Constants {
	return Constants{
		Q:    1.6e-19,
		K:    1.38e-23,
		Eps:  3.6,
		Rp:   100e6,
		Gm:   18e-3,
		Beta: 1,
		Fi:   0.367,
		Fv:   1.15,
		Fvf:  0.226,
		Ctot: 70e-12,
	}
}

// T converts degrees Celsius to Kelvin.
func (c Constants) T(celsius float64) float64 {
	return celsius + 273
}

func (c Constants) RsDenom(celsius float64) float64 {
	return c.Fv/(c.Ctot*c.Ctot)/(4*c.K*c.T(celsius)) - c.Beta/c.Gm
}

// Factor converts squared FWHM in keV to squared equivalent noise charge.
func (c Constants) Factor() float64 {
	f := FWHMFactor * c.Eps * 1e-3 / c.Q
	return f * f
}

func (c Constants) AfDenom() float64 {
	return c.Ctot * c.Ctot * c.Fvf * 2 * math.Pi
}

// PhysicalParameters are the detector quantities derived from a noise model
// fit, in SI units.
type PhysicalParameters struct {
	Ileak    float64 // A
	IleakErr float64
	Rs       float64 // Ohm
	RsErr    float64
	Af       float64 // V^2
	AfErr    float64
}

// TranslateParameters converts fit parameters to leakage current, series
// resistance and flicker coefficient at temperature celsius. A negative Rs is
// clamped to 0 and reported as a *PhysicalRangeWarning.
func TranslateParameters(params []float64, errs []float64, c Constants, celsius float64) (PhysicalParameters, []error) {
	factor := c.Factor()
	p := make([]float64, NoiseModelParams)
	ep := make([]float64, NoiseModelParams)
	for i := range p {
		p[i] = params[i] / factor
		ep[i] = errs[i] / factor
	}

	var phys PhysicalParameters
	var warnings []error

	phys.Ileak = (p[0]/c.Fi - 4*c.K*c.T(celsius)/c.Rp) / (2 * c.Q)
	phys.IleakErr = math.Abs(relativeError(ep[0], p[0]) * phys.Ileak)

	rs := p[1] / c.RsDenom(celsius)
	if rs < 0 {
		warnings = append(warnings, &PhysicalRangeWarning{Quantity: "Rs", Value: rs, Clamped: 0})
		rs = 0
	}
	phys.Rs = rs
	phys.RsErr = relativeError(ep[1], p[1]) * rs

	phys.Af = p[2] / c.AfDenom()
	if p[2] == 0 {
		phys.AfErr = ep[2] / c.AfDenom()
	} else {
		phys.AfErr = relativeError(ep[2], p[2]) * phys.Af
	}
	return phys, warnings
}

func relativeError(err, value float64) float64 {
	if value == 0 {
		return 0
	}
	return math.Abs(err / value)
}

// NoiseModelFit is the outcome of fitting NoiseModel to the resolution points
// of one channel.
type NoiseModelFit struct {
	Params      []float64
	Errors      []float64
	Chi2NDF     float64
	Iterations  int
	Temperature float64
	Physical    PhysicalParameters
	Warnings    []error
}

// FitNoiseModel fits resolution (keV FWHM) against peaking time (s). Any
// failure is returned as a *FitConvergenceError.
func FitNoiseModel(times []float64, resolutions []float64, errs []float64, config NoiseModelConfig) (NoiseModelFit, error) {
	fail := func(err error) (NoiseModelFit, error) {
		return NoiseModelFit{}, &FitConvergenceError{Stage: StageNoiseModel, Err: err}
	}
	for _, t := range times {
		if t <= 0 {
			return fail(fmt.Errorf("peaking time %g s must be positive", t))
		}
	}
	sol, err := LeastSquares(Problem{
		X:       times,
		Y:       resolutions,
		Err:     errs,
		Model:   NoiseModel,
		Start:   config.Start,
		Lower:   config.Lower,
		Upper:   config.Upper,
		MaxIter: config.MaxIter,
	})
	if err != nil {
		return fail(err)
	}
	return NoiseModelFit{
		Params:      sol.Params,
		Errors:      sol.Errors,
		Chi2NDF:     sol.Chi2NDF(),
		Iterations:  sol.Iterations,
		Temperature: config.Temperature,
	}, nil
}

// Translate fills the physical parameters of the fit.
func (f *NoiseModelFit) Translate(c Constants) {
	f.Physical, f.Warnings = TranslateParameters(f.Params, f.Errors, c, f.Temperature)
}

// ErrorBelt is the pointwise envelope of NoiseModel over the 8 corners of
// params +- errors. It is not a confidence interval.
type ErrorBelt struct {
	T   []float64
	Min []float64
	Max []float64
}

func NewErrorBelt(params []float64, errs []float64, ts []float64) ErrorBelt {
	belt := ErrorBelt{
		T:   append([]float64(nil), ts...),
		Min: make([]float64, len(ts)),
		Max: make([]float64, len(ts)),
	}
	for i := range ts {
		belt.Min[i] = math.Inf(1)
		belt.Max[i] = math.Inf(-1)
	}

	corner := make([]float64, NoiseModelParams)
	for mask := 0; mask < 1<<NoiseModelParams; mask++ {
		for j := range corner {
			if mask&(1<<j) != 0 {
				corner[j] = params[j] + errs[j]
			} else {
				corner[j] = params[j] - errs[j]
			}
		}
		for i, t := range ts {
			r := clampedNoiseModel(t, corner)
			belt.Min[i] = math.Min(belt.Min[i], r)
			belt.Max[i] = math.Max(belt.Max[i], r)
		}
	}
	return belt
}

// Contains reports whether the model with params lies inside the belt at
// every point.
func (b ErrorBelt) Contains(params []float64) bool {
	for i, t := range b.T {
		r := clampedNoiseModel(t, params)
		if r < b.Min[i] || r > b.Max[i] {
			return false
		}
	}
	return true
}

// clampedNoiseModel evaluates NoiseModel with the radicand floored at zero,
// since lowered corners can go negative.
func clampedNoiseModel(t float64, p []float64) float64 {
	return math.Sqrt(math.Max(p[0]*t+p[1]/t+p[2], 0))
}

// BeltDomain returns n evenly spaced peaking times over the measured range.
func BeltDomain(times []float64, n int) []float64 {
	if len(times) == 0 || n < 1 {
		return nil
	}
	if n == 1 {
		return []float64{floats.Min(times)}
	}
	return floats.Span(make([]float64, n), floats.Min(times), floats.Max(times))
}
