package h5store

import (
	"path/filepath"
	"testing"

	shaper "github.com/next-exp/shaper_go/pkg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeMetadata() shaper.DigitizerMetadata {
	return shaper.DigitizerMetadata{
		ADCBits:        14,
		RangeLow:       -0.5,
		RangeHigh:      0.5,
		SampleInterval: 4e-9,
		RecordLength:   100,
		PreTrigger:     10,
	}
}

func makeEvents(channel, first, n, samples int) []shaper.RawWaveform {
	events := make([]shaper.RawWaveform, n)
	for i := range events {
		s := make([]uint16, samples)
		for j := range s {
			s[j] = uint16(1000*channel + 10*(first+i) + j%10)
		}
		events[i] = shaper.RawWaveform{Channel: channel, EventID: first + i, Samples: s}
	}
	return events
}

func TestWriteReadRoundtrip(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "waveforms.h5")
	meta := storeMetadata()

	w, err := NewWriter(filename, meta, 4)
	require.NoError(t, err)
	require.NoError(t, w.WriteWaveforms(2, makeEvents(2, 0, 7, meta.RecordLength)))
	require.NoError(t, w.WriteWaveforms(2, makeEvents(2, 7, 5, meta.RecordLength)))
	require.NoError(t, w.WriteWaveforms(5, makeEvents(5, 0, 3, meta.RecordLength)))
	require.NoError(t, w.WriteWaveforms(6, nil))
	require.Error(t, w.WriteWaveforms(5, makeEvents(5, 3, 1, meta.RecordLength-1)))
	require.NoError(t, w.Close())

	r, err := Open(filename)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, meta, r.Metadata())

	n, err := r.NumEvents(2)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	n, err = r.NumEvents(5)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	_, err = r.NumEvents(6)
	assert.Error(t, err)

	events, err := r.ReadEvents(2, 5, 4)
	require.NoError(t, err)
	assert.Equal(t, makeEvents(2, 5, 4, meta.RecordLength), events)

	events, err = r.ReadEvents(2, 10, 100)
	require.NoError(t, err)
	assert.Equal(t, makeEvents(2, 10, 2, meta.RecordLength), events)

	events, err = r.ReadEvents(2, 12, 10)
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = r.ReadEvents(2, 13, 1)
	assert.Error(t, err)
}

func TestReaderFeedsProcessor(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "simulated.h5")
	sim := shaper.DefaultConfiguration().Simulation
	sim.Events = 40
	sim.RecordLength = 2500
	sim.PreTrigger = 250
	meta := sim.Metadata()

	w, err := NewWriter(filename, meta, 1)
	require.NoError(t, err)
	require.NoError(t, w.WriteWaveforms(0, shaper.SimulateTailPulses(sim, 0, shaper.NewRand(3))))
	require.NoError(t, w.Close())

	r, err := Open(filename)
	require.NoError(t, err)
	defer r.Close()

	config := shaper.DefaultConfiguration()
	config.NumWorkers = 3
	config.ChunkSize = 16
	config.Channels = []int{0}
	config.Shaper.PeakingTimes = []float64{1e-6, 2e-6}
	p, err := shaper.NewProcessor(config, r.Metadata(), nil)
	require.NoError(t, err)

	result, err := p.ProcessSource(r, 0)
	require.NoError(t, err)
	assert.Equal(t, 40, result.Events())
	assert.Empty(t, result.Failures)
	for k := range result.PeakingTimes {
		for _, e := range result.Energy[k] {
			assert.Greater(t, e, 0.0)
		}
	}
}
