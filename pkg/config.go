package shaper

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Configuration holds every tunable of an analysis run. It is passed by value
// and never modified once validated.
type Configuration struct {
	FileIn         string `mapstructure:"file_in"`
	Verbosity      int    `mapstructure:"verbosity"`
	NumWorkers     int    `mapstructure:"num_workers"`
	ChunkSize      int    `mapstructure:"chunk_size"`
	MaxEvents      int    `mapstructure:"max_events"`
	Skip           int    `mapstructure:"skip"`
	Channels       []int  `mapstructure:"channels"`
	BaselineWindow int    `mapstructure:"baseline_window"`
	RenderEvents   bool   `mapstructure:"render_events"`
	RenderWorkers  int    `mapstructure:"render_workers"`

	Shaper     ShaperConfig     `mapstructure:"shaper"`
	Histogram  HistogramConfig  `mapstructure:"histogram"`
	NoiseModel NoiseModelConfig `mapstructure:"noise_model"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Simulation SimulationConfig `mapstructure:"simulation"`
}

type ShaperConfig struct {
	Order          int       `mapstructure:"order"`
	PeakingTimes   []float64 `mapstructure:"peaking_times"`
	DecayTime      float64   `mapstructure:"decay_time"`
	DynamicOrder   bool      `mapstructure:"dynamic_order"`
	OrderThreshold float64   `mapstructure:"order_threshold"`
	HighOrder      int       `mapstructure:"high_order"`
	FlatTop        float64   `mapstructure:"flat_top"`
	Holdoff        float64   `mapstructure:"holdoff"`
	NormalizeGain  bool      `mapstructure:"normalize_gain"`
}

// HistogramConfig describes the energy histogram and the sub-band where the
// analysis line is expected. Energies are in mV.
type HistogramConfig struct {
	Bins         int     `mapstructure:"bins"`
	Low          float64 `mapstructure:"low"`
	High         float64 `mapstructure:"high"`
	PeakLow      float64 `mapstructure:"peak_low"`
	PeakHigh     float64 `mapstructure:"peak_high"`
	BoundsWindow float64 `mapstructure:"bounds_window"`
	MaxIter      int     `mapstructure:"max_iter"`
}

type NoiseModelConfig struct {
	Start       []float64 `mapstructure:"start"`
	Lower       []float64 `mapstructure:"lower"`
	Upper       []float64 `mapstructure:"upper"`
	Temperature float64   `mapstructure:"temperature"`
	EnergyScale float64   `mapstructure:"energy_scale"` // keV per mV
	BeltPoints  int       `mapstructure:"belt_points"`
	MaxIter     int       `mapstructure:"max_iter"`
}

type DatabaseConfig struct {
	NoDB      bool   `mapstructure:"no_db"`
	Host      string `mapstructure:"host"`
	User      string `mapstructure:"user"`
	Passwd    string `mapstructure:"pass"`
	DBName    string `mapstructure:"dbname"`
	RunNumber int    `mapstructure:"run_number"`
}

type SimulationConfig struct {
	FileOut      string  `mapstructure:"file_out"`
	Events       int     `mapstructure:"events"`
	Amplitude    float64 `mapstructure:"amplitude"`
	DecayTime    float64 `mapstructure:"decay_time"`
	NoiseSigma   float64 `mapstructure:"noise_sigma"`
	BaselineADC  float64 `mapstructure:"baseline_adc"`
	Seed         uint64  `mapstructure:"seed"`
	ADCBits      int     `mapstructure:"adc_bits"`
	RangeLow     float64 `mapstructure:"range_low"`
	RangeHigh    float64 `mapstructure:"range_high"`
	Sampling     float64 `mapstructure:"sample_interval"`
	RecordLength int     `mapstructure:"record_length"`
	PreTrigger   int     `mapstructure:"pre_trigger"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("verbosity", 0)
	v.SetDefault("num_workers", 10)
	v.SetDefault("chunk_size", 10000)
	v.SetDefault("max_events", 1000000000)
	v.SetDefault("skip", 0)
	v.SetDefault("channels", []int{0, 1, 2, 3, 4, 5, 6, 7})
	v.SetDefault("baseline_window", 200)
	v.SetDefault("render_events", false)
	v.SetDefault("render_workers", 6)

	v.SetDefault("shaper.order", 4)
	v.SetDefault("shaper.peaking_times", []float64{0.5e-6, 1e-6, 2e-6, 4e-6, 8e-6, 12e-6})
	v.SetDefault("shaper.decay_time", 80e-6)
	v.SetDefault("shaper.dynamic_order", false)
	v.SetDefault("shaper.order_threshold", 5e-6)
	v.SetDefault("shaper.high_order", 7)
	v.SetDefault("shaper.flat_top", 0.0)
	v.SetDefault("shaper.holdoff", 0.0)
	v.SetDefault("shaper.normalize_gain", true)

	v.SetDefault("histogram.bins", 80)
	v.SetDefault("histogram.low", 0.0)
	v.SetDefault("histogram.high", 100.0)
	v.SetDefault("histogram.peak_low", 10.0)
	v.SetDefault("histogram.peak_high", 90.0)
	v.SetDefault("histogram.bounds_window", 0.2)
	v.SetDefault("histogram.max_iter", 200)

	v.SetDefault("noise_model.start", []float64{5e5, 1e-5, 1})
	v.SetDefault("noise_model.lower", []float64{1e4, 1e-7, 0})
	v.SetDefault("noise_model.upper", []float64{1e7, 1e-4, 100})
	v.SetDefault("noise_model.temperature", -37.0)
	v.SetDefault("noise_model.energy_scale", 1.0)
	v.SetDefault("noise_model.belt_points", 10000)
	v.SetDefault("noise_model.max_iter", 500)

	v.SetDefault("database.no_db", true)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "reader")
	v.SetDefault("database.pass", "readonly")
	v.SetDefault("database.dbname", "CRANELAB")
	v.SetDefault("database.run_number", 0)

	v.SetDefault("simulation.events", 1000)
	v.SetDefault("simulation.amplitude", 200.0)
	v.SetDefault("simulation.decay_time", 80e-6)
	v.SetDefault("simulation.noise_sigma", 20.0)
	v.SetDefault("simulation.baseline_adc", 8192.0)
	v.SetDefault("simulation.seed", 1)
	v.SetDefault("simulation.adc_bits", 14)
	v.SetDefault("simulation.range_low", -0.5)
	v.SetDefault("simulation.range_high", 0.5)
	v.SetDefault("simulation.sample_interval", 4e-9)
	v.SetDefault("simulation.record_length", 5000)
	v.SetDefault("simulation.pre_trigger", 500)
}

// DefaultConfiguration returns the configuration used when no file is given.
func DefaultConfiguration() Configuration {
	v := viper.New()
	setDefaults(v)
	var config Configuration
	// Defaults always decode.
	_ = v.Unmarshal(&config)
	return config
}

// LoadConfiguration reads a JSON configuration file on top of the defaults.
// Any key can be overridden from the environment with the SHAPER_ prefix.
func LoadConfiguration(filename string) (Configuration, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SHAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filename != "" {
		v.SetConfigFile(filename)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return Configuration{}, fmt.Errorf("error reading configuration file: %w", err)
		}
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return Configuration{}, fmt.Errorf("error decoding configuration: %w", err)
	}
	return config, nil
}

// Validate checks the values that do not depend on the waveform store.
func (c Configuration) Validate() error {
	if c.NumWorkers < 1 {
		return configErrorf("num_workers", "must be at least 1, got %d", c.NumWorkers)
	}
	if c.ChunkSize < 1 {
		return configErrorf("chunk_size", "must be at least 1, got %d", c.ChunkSize)
	}
	if c.Skip < 0 {
		return configErrorf("skip", "must not be negative, got %d", c.Skip)
	}
	if c.BaselineWindow < 1 {
		return configErrorf("baseline_window", "must be at least 1 sample, got %d", c.BaselineWindow)
	}
	for _, ch := range c.Channels {
		if ch < 0 || ch >= NumChannels {
			return configErrorf("channels", "channel %d outside [0, %d)", ch, NumChannels)
		}
	}
	if c.RenderEvents && c.RenderWorkers < 1 {
		return configErrorf("render_workers", "must be at least 1 when rendering, got %d", c.RenderWorkers)
	}
	if err := c.Shaper.Validate(); err != nil {
		return err
	}
	if err := c.Histogram.Validate(); err != nil {
		return err
	}
	return c.NoiseModel.Validate()
}

func (s ShaperConfig) Validate() error {
	if s.Order < 1 {
		return configErrorf("shaper.order", "must be at least 1, got %d", s.Order)
	}
	if s.DynamicOrder && s.HighOrder < 1 {
		return configErrorf("shaper.high_order", "must be at least 1, got %d", s.HighOrder)
	}
	if len(s.PeakingTimes) == 0 {
		return configErrorf("shaper.peaking_times", "at least one peaking time is required")
	}
	seen := make(map[float64]bool, len(s.PeakingTimes))
	for _, pt := range s.PeakingTimes {
		if pt <= 0 {
			return configErrorf("shaper.peaking_times", "peaking time must be positive, got %g", pt)
		}
		if seen[pt] {
			return configErrorf("shaper.peaking_times", "duplicated peaking time %g", pt)
		}
		seen[pt] = true
	}
	if s.DecayTime <= 0 {
		return configErrorf("shaper.decay_time", "must be positive, got %g", s.DecayTime)
	}
	if s.FlatTop < 0 || s.Holdoff < 0 {
		return configErrorf("shaper.flat_top", "flat top and holdoff must not be negative")
	}
	return nil
}

// Policy returns the order policy described by the configuration.
func (s ShaperConfig) Policy() OrderPolicy {
	if s.DynamicOrder {
		return ThresholdOrder(s.Order, s.HighOrder, s.OrderThreshold)
	}
	return FixedOrder(s.Order)
}

func (h HistogramConfig) Validate() error {
	if h.Bins < 3 {
		return configErrorf("histogram.bins", "need at least 3 bins, got %d", h.Bins)
	}
	if h.High <= h.Low {
		return configErrorf("histogram.high", "upper edge %g must be above lower edge %g", h.High, h.Low)
	}
	if h.PeakHigh <= h.PeakLow || h.PeakLow < h.Low || h.PeakHigh > h.High {
		return configErrorf("histogram.peak_low", "peak band [%g, %g] must lie inside [%g, %g]",
			h.PeakLow, h.PeakHigh, h.Low, h.High)
	}
	if h.BoundsWindow <= 0 || h.BoundsWindow >= 1 {
		return configErrorf("histogram.bounds_window", "must be in (0, 1), got %g", h.BoundsWindow)
	}
	if h.MaxIter < 1 {
		return configErrorf("histogram.max_iter", "must be at least 1, got %d", h.MaxIter)
	}
	return nil
}

func (n NoiseModelConfig) Validate() error {
	if len(n.Start) != NoiseModelParams || len(n.Lower) != NoiseModelParams || len(n.Upper) != NoiseModelParams {
		return configErrorf("noise_model.start", "start, lower and upper need %d values each", NoiseModelParams)
	}
	for i := range n.Start {
		if n.Lower[i] > n.Upper[i] {
			return configErrorf("noise_model.lower", "lower bound of p%d above upper bound", i)
		}
		if n.Start[i] < n.Lower[i] || n.Start[i] > n.Upper[i] {
			return configErrorf("noise_model.start", "start value of p%d outside its bounds", i)
		}
	}
	if n.EnergyScale <= 0 {
		return configErrorf("noise_model.energy_scale", "must be positive, got %g", n.EnergyScale)
	}
	if n.BeltPoints < 2 {
		return configErrorf("noise_model.belt_points", "need at least 2 points, got %d", n.BeltPoints)
	}
	if n.MaxIter < 1 {
		return configErrorf("noise_model.max_iter", "must be at least 1, got %d", n.MaxIter)
	}
	return nil
}
