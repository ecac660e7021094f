package shaper

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate"
)

// ADC converts digitizer counts to volts.
type ADC struct {
	Bits      int
	RangeLow  float64
	RangeHigh float64
}

// LSB is the voltage step of one count.
func (a ADC) LSB() float64 {
	return (a.RangeHigh - a.RangeLow) / math.Exp2(float64(a.Bits))
}

func (a ADC) ToVolts(count float64) float64 {
	return a.RangeLow + count*a.LSB()
}

// MaxCount is the largest representable sample value.
func (a ADC) MaxCount() int {
	return 1<<a.Bits - 1
}

type BaselineCorrectedWaveform struct {
	EventID  int
	Baseline float64 // counts
	Volts    []float64
}

// EstimateBaseline averages the first window samples.
func EstimateBaseline(samples []uint16, window int) (float64, error) {
	if window < 1 || window > len(samples) {
		return 0, fmt.Errorf("baseline window %d outside record of %d samples", window, len(samples))
	}
	var sum float64
	for _, s := range samples[:window] {
		sum += float64(s)
	}
	return sum / float64(window), nil
}

// CorrectBaseline subtracts the baseline and converts the record to volts.
// The offset of the ADC transform cancels, so only the LSB is applied.
func CorrectBaseline(raw RawWaveform, window int, adc ADC) (BaselineCorrectedWaveform, error) {
	baseline, err := EstimateBaseline(raw.Samples, window)
	if err != nil {
		return BaselineCorrectedWaveform{}, err
	}
	lsb := adc.LSB()
	volts := make([]float64, len(raw.Samples))
	for i, s := range raw.Samples {
		volts[i] = (float64(s) - baseline) * lsb
	}
	return BaselineCorrectedWaveform{EventID: raw.EventID, Baseline: baseline, Volts: volts}, nil
}

// Charge integrates the corrected waveform over the full record with
// Simpson's rule. times must match volts in length.
func Charge(volts []float64, times []float64) float64 {
	if len(volts) < 3 {
		return 0
	}
	return integrate.Simpsons(times, volts)
}
