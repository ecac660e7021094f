package shaper

import (
	"errors"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"gonum.org/v1/gonum/floats"
)

// ShaperParams describes one semi-Gaussian shaper.
type ShaperParams struct {
	Order          int
	PeakingTime    float64 // seconds
	DecayTime      float64 // preamplifier decay constant to cancel, seconds
	SampleInterval float64 // seconds
	NormalizeGain  bool
}

// TimingBudget is the room a record leaves for the shaped pulse.
type TimingBudget struct {
	RecordLength int
	FlatTop      float64
	Holdoff      float64
}

// ShaperFilter is an immutable CR-RC^n shaper with pole-zero cancellation,
// stored as a cascade of biquad sections.
type ShaperFilter struct {
	ShaperParams
	sections []biquad.Coefficients
	gain     float64
}

const budgetTolerance = 1e-12

// NewShaperFilter designs the filter and checks it fits inside the record.
func NewShaperFilter(params ShaperParams, budget TimingBudget) (*ShaperFilter, error) {
	if budget.RecordLength < 1 {
		return nil, configErrorf("record_length", "must be positive, got %d", budget.RecordLength)
	}
	if !(params.SampleInterval > 0) {
		return nil, configErrorf("sample_interval", "must be positive, got %g", params.SampleInterval)
	}
	// Compared in samples with a relative tolerance, so that a peaking time of
	// exactly the record duration is rejected despite rounding.
	need := (params.PeakingTime + budget.FlatTop + budget.Holdoff) / params.SampleInterval
	if need >= float64(budget.RecordLength)*(1-budgetTolerance) {
		return nil, configErrorf("shaper.peaking_times",
			"peaking time %g s + flat top %g s + holdoff %g s does not fit in a record of %g s",
			params.PeakingTime, budget.FlatTop, budget.Holdoff, float64(budget.RecordLength)*params.SampleInterval)
	}
	sections, err := DesignShaper(params.Order, params.PeakingTime, params.DecayTime, params.SampleInterval)
	if err != nil {
		return nil, err
	}
	gain := 1.0
	if params.NormalizeGain {
		gain = 1 / PeakGain(params.Order)
	}
	return &ShaperFilter{ShaperParams: params, sections: sections, gain: gain}, nil
}

// Sections returns a copy of the biquad coefficients.
func (f *ShaperFilter) Sections() []biquad.Coefficients {
	out := make([]biquad.Coefficients, len(f.sections))
	copy(out, f.sections)
	return out
}

func (f *ShaperFilter) Gain() float64 {
	return f.gain
}

// Apply shapes one waveform. Every call runs on a fresh cascade, so no state
// is carried between events.
func (f *ShaperFilter) Apply(volts []float64) ([]float64, error) {
	out := make([]float64, len(volts))
	copy(out, volts)
	chain := biquad.NewChain(f.sections, biquad.WithGain(f.gain))
	chain.ProcessBlock(out)
	for _, y := range out {
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return nil, errNonFinite
		}
	}
	return out, nil
}

var errNonFinite = errors.New("non-finite filter output")

// ImpulseResponse returns the first n samples of the response to a unit
// impulse, gain included.
func (f *ShaperFilter) ImpulseResponse(n int) []float64 {
	return biquad.NewChain(f.sections, biquad.WithGain(f.gain)).ImpulseResponse(n)
}

// NoiseGain is the factor applied by the filter to the rms of white noise,
// the L2 norm of the first n samples of the impulse response.
func (f *ShaperFilter) NoiseGain(n int) float64 {
	return floats.Norm(f.ImpulseResponse(n), 2)
}

// DesignShaper synthesizes the digital shaper. The analog prototype is
//
//	H(s) = (s + 1/decayTime) * a^(n-1) / (s + a)^n
//
// with a = (n-1)/peakingTime so that a tail pulse with the cancelled decay
// constant peaks at peakingTime (a = 1/peakingTime for n = 1). Each pair of
// poles is mapped with the bilinear transform into one biquad; an odd order
// leaves a first-order section at the front.
func DesignShaper(order int, peakingTime, decayTime, dt float64) ([]biquad.Coefficients, error) {
	if order < 1 {
		return nil, configErrorf("shaper.order", "must be at least 1, got %d", order)
	}
	if peakingTime <= 0 || decayTime <= 0 || dt <= 0 {
		return nil, configErrorf("shaper.peaking_times",
			"peaking time, decay time and sample interval must be positive (%g, %g, %g)", peakingTime, decayTime, dt)
	}

	a := 1 / peakingTime
	if order > 1 {
		a = float64(order-1) / peakingTime
	}
	z := 1 / decayTime
	k := 2 / dt

	sections := make([]biquad.Coefficients, 0, (order+1)/2)
	remaining := order
	if order%2 == 1 {
		// (s + z) / (s + a)
		sections = append(sections, bilinearFirstOrder(1, z, 1, a, k))
		remaining--
	} else {
		// a (s + z) / (s + a)^2
		sections = append(sections, bilinearSecondOrder(0, a, a*z, 1, 2*a, a*a, k))
		remaining -= 2
	}
	for ; remaining > 0; remaining -= 2 {
		// a^2 / (s + a)^2
		sections = append(sections, bilinearSecondOrder(0, 0, a*a, 1, 2*a, a*a, k))
	}
	return sections, nil
}

// PeakGain is the peak of the continuous shaper response to a tail pulse of
// unit amplitude whose decay is exactly cancelled:
// (n-1)^(n-1) e^-(n-1) / (n-1)!.
func PeakGain(order int) float64 {
	if order <= 1 {
		return 1
	}
	m := float64(order - 1)
	lgamma, _ := math.Lgamma(m + 1)
	return math.Exp(m*math.Log(m) - m - lgamma)
}

// bilinearSecondOrder maps (b0 s^2 + b1 s + b2)/(a0 s^2 + a1 s + a2) with
// s = k (1 - z^-1)/(1 + z^-1).
func bilinearSecondOrder(b0, b1, b2, a0, a1, a2, k float64) biquad.Coefficients {
	k2 := k * k
	norm := a0*k2 + a1*k + a2
	return biquad.Coefficients{
		B0: (b0*k2 + b1*k + b2) / norm,
		B1: (2*b2 - 2*b0*k2) / norm,
		B2: (b0*k2 - b1*k + b2) / norm,
		A1: (2*a2 - 2*a0*k2) / norm,
		A2: (a0*k2 - a1*k + a2) / norm,
	}
}

// bilinearFirstOrder maps (b1 s + b2)/(a1 s + a2); B2 = A2 = 0.
func bilinearFirstOrder(b1, b2, a1, a2, k float64) biquad.Coefficients {
	norm := a1*k + a2
	return biquad.Coefficients{
		B0: (b1*k + b2) / norm,
		B1: (b2 - b1*k) / norm,
		A1: (a2 - a1*k) / norm,
	}
}
