package shaper

import (
	"fmt"
	"math"
)

// FWHMFactor converts the sigma of a normal distribution to its full width at
// half maximum.
const FWHMFactor = 2.355

// ResolutionPoint is the fitted energy line at one peaking time. Energies are
// in mV. A failed point keeps its histogram and carries the error in Err.
type ResolutionPoint struct {
	PeakingTime   float64
	Entries       int
	Mean          float64
	MeanErr       float64
	Sigma         float64
	SigmaErr      float64
	Amplitude     float64
	Resolution    float64
	ResolutionErr float64
	Chi2NDF       float64
	Histogram     Histogram
	Err           error
}

// Gap reports whether the point could not be fitted.
func (p ResolutionPoint) Gap() bool {
	return p.Err != nil
}

var gaussianParams = [...]string{"mean", "sigma", "amplitude"}

// Gaussian is amp * exp(-(x-mean)^2 / 2 sigma^2) with p = (mean, sigma, amp).
func Gaussian(x float64, p []float64) float64 {
	d := (x - p[0]) / p[1]
	return p[2] * math.Exp(-0.5*d*d)
}

// ExtractResolution histograms the energies, seeds a Gaussian from the
// fullest bin of the peak band and fits it over the band. Failures are
// returned as *FitConvergenceError.
func ExtractResolution(energies []float64, config HistogramConfig) (ResolutionPoint, error) {
	hist, err := NewHistogram(energies, config.Bins, config.Low, config.High)
	if err != nil {
		return ResolutionPoint{}, err
	}
	point := ResolutionPoint{Histogram: hist, Entries: hist.Entries()}
	fail := func(err error) (ResolutionPoint, error) {
		point.Err = &FitConvergenceError{Stage: StageResolution, Err: err}
		return point, point.Err
	}

	seed, ok := hist.MaxBin(config.PeakLow, config.PeakHigh)
	if !ok {
		return fail(fmt.Errorf("band [%g, %g] mV: %w", config.PeakLow, config.PeakHigh, ErrNoEntries))
	}
	first, last := hist.BandBins(config.PeakLow, config.PeakHigh)

	x := make([]float64, 0, last-first)
	y := make([]float64, 0, last-first)
	errs := make([]float64, 0, last-first)
	for i := first; i < last; i++ {
		x = append(x, hist.Center(i))
		y = append(y, hist.Counts[i])
		errs = append(errs, math.Sqrt(math.Max(hist.Counts[i], 1)))
	}

	w := config.BoundsWindow
	meanSeed := hist.Center(seed)
	ampSeed := hist.Counts[seed]
	sigmaLow := hist.BinWidth() / 4
	sigmaHigh := math.Max(config.PeakHigh-config.PeakLow, sigmaLow)
	sigmaSeed := clamp(hist.HalfMaxWidth(seed)/FWHMFactor, sigmaLow, sigmaHigh)

	meanLow, meanHigh := meanSeed*(1-w), meanSeed*(1+w)
	if meanLow > meanHigh {
		meanLow, meanHigh = meanHigh, meanLow
	}
	sol, err := LeastSquares(Problem{
		X:       x,
		Y:       y,
		Err:     errs,
		Model:   Gaussian,
		Start:   []float64{meanSeed, sigmaSeed, ampSeed},
		Lower:   []float64{meanLow, sigmaLow, ampSeed * (1 - w)},
		Upper:   []float64{meanHigh, sigmaHigh, ampSeed * (1 + w)},
		MaxIter: config.MaxIter,
	})
	if err != nil {
		return fail(err)
	}
	// A parameter left on its bound is not a measurement.
	for j, name := range gaussianParams {
		if sol.AtBound[j] {
			return fail(fmt.Errorf("%s %g: %w", name, sol.Params[j], ErrPinnedAtBound))
		}
	}

	point.Mean, point.MeanErr = sol.Params[0], sol.Errors[0]
	point.Sigma, point.SigmaErr = sol.Params[1], sol.Errors[1]
	point.Amplitude = sol.Params[2]
	point.Resolution = FWHMFactor * point.Sigma
	point.ResolutionErr = FWHMFactor * point.SigmaErr
	point.Chi2NDF = sol.Chi2NDF()
	return point, nil
}
