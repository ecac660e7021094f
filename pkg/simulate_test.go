package shaper

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func TestSimulationMetadata(t *testing.T) {
	sim := testSimulation(10)
	assert.Equal(t, testMetadata(), sim.Metadata())
	require.NoError(t, sim.Validate())

	var cfgErr *ConfigurationError
	bad := sim
	bad.Events = 0
	require.True(t, errors.As(bad.Validate(), &cfgErr))
	assert.Equal(t, "simulation.events", cfgErr.Field)

	bad = sim
	bad.PreTrigger = bad.RecordLength
	require.True(t, errors.As(bad.Validate(), &cfgErr))
	assert.Equal(t, "digitizer.pre_trigger", cfgErr.Field)
}

func TestSimulateTailPulsesNoiseFree(t *testing.T) {
	sim := testSimulation(3)
	sim.NoiseSigma = 0
	events := SimulateTailPulses(sim, 5, NewRand(1))
	require.Len(t, events, 3)

	for e, wf := range events {
		assert.Equal(t, 5, wf.Channel)
		assert.Equal(t, e, wf.EventID)
		require.Len(t, wf.Samples, sim.RecordLength)
		assert.Equal(t, uint16(sim.BaselineADC), wf.Samples[0])
		assert.Equal(t, uint16(sim.BaselineADC), wf.Samples[sim.PreTrigger-1])
		assert.Equal(t, uint16(sim.BaselineADC+sim.Amplitude), wf.Samples[sim.PreTrigger])
		assert.Less(t, wf.Samples[sim.RecordLength-1], wf.Samples[sim.PreTrigger])
	}
}

func TestSimulateTailPulsesClipped(t *testing.T) {
	sim := testSimulation(1)
	sim.NoiseSigma = 0
	sim.Amplitude = 1e6
	events := SimulateTailPulses(sim, 0, NewRand(1))
	maxCount := uint16(sim.Metadata().ADC().MaxCount())
	assert.Equal(t, maxCount, events[0].Samples[sim.PreTrigger])
}

func TestSimulateTailPulsesNoise(t *testing.T) {
	sim := testSimulation(20)
	events := SimulateTailPulses(sim, 0, NewRand(7))

	var pre []float64
	for _, wf := range events {
		for _, s := range wf.Samples[:sim.PreTrigger] {
			pre = append(pre, float64(s))
		}
	}
	mean, std := stat.MeanStdDev(pre, nil)
	assert.InDelta(t, sim.BaselineADC, mean, 0.5)
	assert.InDelta(t, sim.NoiseSigma, std, 0.05*sim.NoiseSigma)

	again := SimulateTailPulses(sim, 0, NewRand(7))
	assert.Equal(t, events, again)
	other := SimulateTailPulses(sim, 0, NewRand(8))
	assert.NotEqual(t, events, other)
}
