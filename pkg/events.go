package shaper

import (
	"fmt"
)

// RawWaveform is one digitized record as read from the waveform store.
type RawWaveform struct {
	Channel int
	EventID int
	Samples []uint16
}

// DigitizerMetadata describes how the waveforms were recorded.
type DigitizerMetadata struct {
	ADCBits        int
	RangeLow       float64 // volts
	RangeHigh      float64 // volts
	SampleInterval float64 // seconds
	RecordLength   int     // samples
	PreTrigger     int     // samples before the trigger, 0 if unknown
}

func (m DigitizerMetadata) ADC() ADC {
	return ADC{Bits: m.ADCBits, RangeLow: m.RangeLow, RangeHigh: m.RangeHigh}
}

// Duration is the length of one record in seconds.
func (m DigitizerMetadata) Duration() float64 {
	return float64(m.RecordLength) * m.SampleInterval
}

// Times returns the sampling instants of one record.
func (m DigitizerMetadata) Times() []float64 {
	t := make([]float64, m.RecordLength)
	for i := range t {
		t[i] = float64(i) * m.SampleInterval
	}
	return t
}

func (m DigitizerMetadata) Validate() error {
	if m.ADCBits < 1 || m.ADCBits > 16 {
		return configErrorf("digitizer.adc_bits", "must be in [1, 16], got %d", m.ADCBits)
	}
	if m.RangeHigh <= m.RangeLow {
		return configErrorf("digitizer.range", "upper bound %g must be above lower bound %g", m.RangeHigh, m.RangeLow)
	}
	if m.SampleInterval <= 0 {
		return configErrorf("digitizer.sample_interval", "must be positive, got %g", m.SampleInterval)
	}
	if m.RecordLength < 3 {
		return configErrorf("digitizer.record_length", "need at least 3 samples, got %d", m.RecordLength)
	}
	if m.PreTrigger < 0 || m.PreTrigger >= m.RecordLength {
		return configErrorf("digitizer.pre_trigger", "must be in [0, %d), got %d", m.RecordLength, m.PreTrigger)
	}
	return nil
}

// WaveformSource is the external waveform store, read once per channel.
type WaveformSource interface {
	Metadata() DigitizerMetadata
	NumEvents(channel int) (int, error)
	ReadEvents(channel int, start int, count int) ([]RawWaveform, error)
}

// MemorySource keeps waveforms in memory, keyed by channel.
type MemorySource struct {
	Meta      DigitizerMetadata
	Waveforms map[int][]RawWaveform
}

func NewMemorySource(meta DigitizerMetadata) *MemorySource {
	return &MemorySource{Meta: meta, Waveforms: make(map[int][]RawWaveform)}
}

func (m *MemorySource) Add(wfs ...RawWaveform) {
	for _, wf := range wfs {
		m.Waveforms[wf.Channel] = append(m.Waveforms[wf.Channel], wf)
	}
}

func (m *MemorySource) Metadata() DigitizerMetadata {
	return m.Meta
}

func (m *MemorySource) NumEvents(channel int) (int, error) {
	return len(m.Waveforms[channel]), nil
}

func (m *MemorySource) ReadEvents(channel int, start int, count int) ([]RawWaveform, error) {
	wfs := m.Waveforms[channel]
	if start < 0 || start > len(wfs) {
		return nil, fmt.Errorf("start %d outside [0, %d] for channel %d", start, len(wfs), channel)
	}
	end := start + count
	if end > len(wfs) {
		end = len(wfs)
	}
	return wfs[start:end], nil
}
