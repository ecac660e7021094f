package shaper

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMetadata() DigitizerMetadata {
	return DigitizerMetadata{
		ADCBits:        14,
		RangeLow:       -0.5,
		RangeHigh:      0.5,
		SampleInterval: testDt,
		RecordLength:   2500,
		PreTrigger:     250,
	}
}

func testConfiguration() Configuration {
	config := DefaultConfiguration()
	config.NumWorkers = 4
	config.ChunkSize = 64
	config.BaselineWindow = 200
	config.Channels = []int{0}
	config.Shaper.PeakingTimes = []float64{1e-6, 4e-6}
	config.Shaper.DecayTime = testDecay
	return config
}

func testSimulation(events int) SimulationConfig {
	sim := DefaultConfiguration().Simulation
	meta := testMetadata()
	sim.Events = events
	sim.Amplitude = 200
	sim.NoiseSigma = 20
	sim.DecayTime = testDecay
	sim.ADCBits = meta.ADCBits
	sim.RangeLow = meta.RangeLow
	sim.RangeHigh = meta.RangeHigh
	sim.Sampling = meta.SampleInterval
	sim.RecordLength = meta.RecordLength
	sim.PreTrigger = meta.PreTrigger
	return sim
}

func TestPartition(t *testing.T) {
	events := make([]RawWaveform, 10)
	for i := range events {
		events[i].EventID = i
	}

	batches := Partition(events, 3)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0].Events, 4)
	assert.Len(t, batches[1].Events, 3)
	assert.Len(t, batches[2].Events, 3)
	assert.Equal(t, 4, batches[1].Events[0].EventID)

	assert.Len(t, Partition(events[:2], 8), 2)
	assert.Empty(t, Partition(nil, 4))
}

func TestNewProcessorConfigurationErrors(t *testing.T) {
	var cfgErr *ConfigurationError

	config := testConfiguration()
	config.Shaper.Order = 0
	_, err := NewProcessor(config, testMetadata(), nil)
	require.True(t, errors.As(err, &cfgErr))

	config = testConfiguration()
	config.Shaper.PeakingTimes = []float64{12e-6}
	_, err = NewProcessor(config, testMetadata(), nil)
	require.True(t, errors.As(err, &cfgErr))

	config = testConfiguration()
	config.BaselineWindow = 300
	_, err = NewProcessor(config, testMetadata(), nil)
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "baseline_window", cfgErr.Field)
}

func TestProcessorOrders(t *testing.T) {
	config := testConfiguration()
	p, err := NewProcessor(config, testMetadata(), ThresholdOrder(4, 7, 2e-6))
	require.NoError(t, err)

	result := p.Process(nil)
	assert.Equal(t, []int{4, 7}, result.Orders)
	assert.Equal(t, 0, result.Events())
}

func TestProcessEnergies(t *testing.T) {
	config := testConfiguration()
	meta := testMetadata()
	p, err := NewProcessor(config, meta, nil)
	require.NoError(t, err)

	sim := testSimulation(40)
	sim.NoiseSigma = 0
	events := SimulateTailPulses(sim, 0, NewRand(1))
	result := p.Process(events)

	require.Equal(t, 40, result.Events())
	assert.Empty(t, result.Failures)
	expected := 1e3 * sim.Amplitude * meta.ADC().LSB()
	for k := range result.PeakingTimes {
		require.Len(t, result.Energy[k], 40)
		require.Len(t, result.Baseline[k], 40)
		require.Len(t, result.Charge[k], 40)
		for i := range result.Energy[k] {
			assert.InDelta(t, expected, result.Energy[k][i], 0.02*expected)
			assert.InDelta(t, sim.BaselineADC, result.Baseline[k][i], 1)
			assert.Greater(t, result.Charge[k][i], 0.0)
		}
	}
}

func TestProcessIsolatesBadEvents(t *testing.T) {
	config := testConfiguration()
	p, err := NewProcessor(config, testMetadata(), nil)
	require.NoError(t, err)

	events := SimulateTailPulses(testSimulation(10), 0, NewRand(2))
	events[3].Samples = events[3].Samples[:100]
	result := p.Process(events)

	assert.Equal(t, 9, result.Events())
	require.Len(t, result.Failures, 1)
	var evtErr *EventError
	require.True(t, errors.As(result.Failures[0], &evtErr))
	assert.Equal(t, 3, evtErr.EventID)
}

func TestShapeEventDegradesToZero(t *testing.T) {
	f, err := NewShaperFilter(ShaperParams{
		Order: 4, PeakingTime: 1e-6, DecayTime: testDecay, SampleInterval: testDt,
	}, testBudget(1000))
	require.NoError(t, err)

	volts := make([]float64, 1000)
	volts[5] = math.NaN()
	energy, shaped, err := shapeEvent(f, 17, volts)
	assert.Equal(t, 0.0, energy)
	assert.Nil(t, shaped)
	var instErr *FilterInstabilityError
	require.True(t, errors.As(err, &instErr))
	assert.Equal(t, 17, instErr.EventID)
	assert.Equal(t, 1e-6, instErr.PeakingTime)
}

func TestProcessSourceChunks(t *testing.T) {
	config := testConfiguration()
	config.ChunkSize = 7
	config.Skip = 3
	config.MaxEvents = 30
	meta := testMetadata()
	p, err := NewProcessor(config, meta, nil)
	require.NoError(t, err)

	src := NewMemorySource(meta)
	src.Add(SimulateTailPulses(testSimulation(50), 0, NewRand(3))...)

	result, err := p.ProcessSource(src, 0)
	require.NoError(t, err)
	assert.Equal(t, 27, result.Events())
}

type countingRenderer struct {
	mu     sync.Mutex
	events int
}

func (r *countingRenderer) RenderEvent(batchID int, eventID int, times []float64, volts []float64, peakingTimes []float64, shaped [][]float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events++
	if len(shaped) != len(peakingTimes) || len(volts) != len(times) {
		return errors.New("inconsistent render input")
	}
	return nil
}

func TestProcessWithRenderer(t *testing.T) {
	config := testConfiguration()
	config.NumWorkers = 10
	config.RenderEvents = true
	config.RenderWorkers = 2
	renderer := &countingRenderer{}
	p, err := NewProcessor(config, testMetadata(), nil, WithRenderer(renderer))
	require.NoError(t, err)
	assert.Equal(t, 2, p.Workers())

	p.Process(SimulateTailPulses(testSimulation(12), 0, NewRand(4)))
	assert.Equal(t, 12, renderer.events)
}

type panickingRenderer struct {
	failOn int
	calls  int
}

func (r *panickingRenderer) RenderEvent(batchID int, eventID int, times []float64, volts []float64, peakingTimes []float64, shaped [][]float64) error {
	r.calls++
	if eventID == r.failOn {
		panic("render failed")
	}
	return nil
}

func TestProcessRendererPanicKeepsBatch(t *testing.T) {
	config := testConfiguration()
	config.NumWorkers = 1
	config.RenderEvents = true
	renderer := &panickingRenderer{failOn: 1}
	p, err := NewProcessor(config, testMetadata(), nil, WithRenderer(renderer))
	require.NoError(t, err)

	result := p.Process(SimulateTailPulses(testSimulation(10), 0, NewRand(5)))
	assert.Equal(t, 10, result.Events())
	assert.Equal(t, 10, renderer.calls)
	require.Len(t, result.Failures, 1)

	var renderErr *RenderError
	require.True(t, errors.As(result.Failures[0], &renderErr))
	assert.Equal(t, 1, renderErr.EventID)
	for k := range result.PeakingTimes {
		for _, e := range result.Energy[k] {
			assert.Greater(t, e, 0.0)
		}
	}
}
