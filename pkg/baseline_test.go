package shaper

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func TestADC(t *testing.T) {
	adc := ADC{Bits: 14, RangeLow: -0.5, RangeHigh: 0.5}
	assert.InDelta(t, 1.0/16384, adc.LSB(), 1e-15)
	assert.Equal(t, 16383, adc.MaxCount())
	assert.InDelta(t, -0.5, adc.ToVolts(0), 1e-15)
	assert.InDelta(t, 0.0, adc.ToVolts(8192), 1e-12)
}

func TestEstimateBaseline(t *testing.T) {
	samples := []uint16{10, 20, 30, 40, 1000}
	b, err := EstimateBaseline(samples, 4)
	require.NoError(t, err)
	assert.InDelta(t, 25, b, 1e-12)

	_, err = EstimateBaseline(samples, 0)
	assert.Error(t, err)
	_, err = EstimateBaseline(samples, 6)
	assert.Error(t, err)
}

func TestCorrectBaselineZeroesWindow(t *testing.T) {
	adc := ADC{Bits: 14, RangeLow: -0.5, RangeHigh: 0.5}
	rng := NewRand(7)
	for trial := 0; trial < 20; trial++ {
		samples := make([]uint16, 500)
		offset := 1000 + rng.Float64()*14000
		for i := range samples {
			samples[i] = uint16(offset + 50*rng.NormFloat64())
		}
		window := 1 + rng.Intn(200)

		corrected, err := CorrectBaseline(RawWaveform{EventID: trial, Samples: samples}, window, adc)
		require.NoError(t, err)
		assert.Equal(t, trial, corrected.EventID)
		assert.Len(t, corrected.Volts, len(samples))
		assert.InDelta(t, 0, stat.Mean(corrected.Volts[:window], nil), 1e-12)
	}
}

func TestCorrectBaselineScale(t *testing.T) {
	adc := ADC{Bits: 12, RangeLow: 0, RangeHigh: 2}
	samples := []uint16{100, 100, 100, 164}
	corrected, err := CorrectBaseline(RawWaveform{Samples: samples}, 3, adc)
	require.NoError(t, err)
	assert.InDelta(t, 100, corrected.Baseline, 1e-12)
	assert.InDelta(t, 64*adc.LSB(), corrected.Volts[3], 1e-12)
}

func TestCharge(t *testing.T) {
	meta := DigitizerMetadata{RecordLength: 1001, SampleInterval: 1e-3}
	times := meta.Times()
	volts := make([]float64, len(times))
	for i, tt := range times {
		volts[i] = math.Exp(-tt)
	}
	// integral of exp(-t) over [0, 1]
	assert.InDelta(t, 1-math.Exp(-1), Charge(volts, times), 1e-9)
	assert.Equal(t, 0.0, Charge(volts[:2], times[:2]))
}
