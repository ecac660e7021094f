package shaper

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Metadata describes the digitizer the simulated records emulate.
func (s SimulationConfig) Metadata() DigitizerMetadata {
	return DigitizerMetadata{
		ADCBits:        s.ADCBits,
		RangeLow:       s.RangeLow,
		RangeHigh:      s.RangeHigh,
		SampleInterval: s.Sampling,
		RecordLength:   s.RecordLength,
		PreTrigger:     s.PreTrigger,
	}
}

func (s SimulationConfig) Validate() error {
	if s.Events < 1 {
		return configErrorf("simulation.events", "must be at least 1, got %d", s.Events)
	}
	if s.DecayTime <= 0 {
		return configErrorf("simulation.decay_time", "must be positive, got %g", s.DecayTime)
	}
	if s.NoiseSigma < 0 {
		return configErrorf("simulation.noise_sigma", "must not be negative, got %g", s.NoiseSigma)
	}
	return s.Metadata().Validate()
}

// NewRand returns the generator used for a simulation seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// SimulateTailPulses generates preamplifier tail pulses: a step of Amplitude
// counts at PreTrigger decaying with DecayTime, on top of BaselineADC, with
// white Gaussian noise of NoiseSigma counts. Samples are rounded and clipped
// to the ADC range.
func SimulateTailPulses(config SimulationConfig, channel int, rng *rand.Rand) []RawWaveform {
	meta := config.Metadata()
	maxCount := float64(meta.ADC().MaxCount())

	tail := make([]float64, meta.RecordLength)
	for i := meta.PreTrigger; i < meta.RecordLength; i++ {
		t := float64(i-meta.PreTrigger) * meta.SampleInterval
		tail[i] = config.Amplitude * math.Exp(-t/config.DecayTime)
	}

	noise := distuv.Normal{Mu: config.BaselineADC, Sigma: config.NoiseSigma, Src: rng}
	events := make([]RawWaveform, config.Events)
	for e := range events {
		samples := make([]uint16, meta.RecordLength)
		for i := range samples {
			v := tail[i] + noise.Rand()
			samples[i] = uint16(clamp(math.Round(v), 0, maxCount))
		}
		events[e] = RawWaveform{Channel: channel, EventID: e, Samples: samples}
	}
	return events
}
