package shaper

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigurationIsValid(t *testing.T) {
	config := DefaultConfiguration()
	require.NoError(t, config.Validate())
	require.NoError(t, config.Simulation.Validate())

	assert.Equal(t, 10, config.NumWorkers)
	assert.Equal(t, 6, config.RenderWorkers)
	assert.Equal(t, 4, config.Shaper.Order)
	assert.Equal(t, 7, config.Shaper.HighOrder)
	assert.Equal(t, 5e-6, config.Shaper.OrderThreshold)
	assert.True(t, config.Shaper.NormalizeGain)
	assert.Equal(t, []float64{5e5, 1e-5, 1}, config.NoiseModel.Start)
	assert.Equal(t, []float64{1e4, 1e-7, 0}, config.NoiseModel.Lower)
	assert.Equal(t, []float64{1e7, 1e-4, 100}, config.NoiseModel.Upper)
	assert.Equal(t, -37.0, config.NoiseModel.Temperature)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, config.Channels)
	assert.True(t, config.Database.NoDB)
}

func TestLoadConfiguration(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"file_in": "run_42.h5",
		"num_workers": 3,
		"channels": [1, 5],
		"shaper": {"order": 6, "peaking_times": [1e-6, 2e-6]},
		"noise_model": {"temperature": -20}
	}`
	require.NoError(t, os.WriteFile(filename, []byte(content), 0o644))
	t.Setenv("SHAPER_BASELINE_WINDOW", "150")

	config, err := LoadConfiguration(filename)
	require.NoError(t, err)
	assert.Equal(t, "run_42.h5", config.FileIn)
	assert.Equal(t, 3, config.NumWorkers)
	assert.Equal(t, []int{1, 5}, config.Channels)
	assert.Equal(t, 6, config.Shaper.Order)
	assert.Equal(t, []float64{1e-6, 2e-6}, config.Shaper.PeakingTimes)
	assert.Equal(t, 80e-6, config.Shaper.DecayTime)
	assert.Equal(t, -20.0, config.NoiseModel.Temperature)
	assert.Equal(t, 150, config.BaselineWindow)
	require.NoError(t, config.Validate())
}

func TestLoadConfigurationMissingFile(t *testing.T) {
	_, err := LoadConfiguration(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestValidateConfiguration(t *testing.T) {
	cases := []struct {
		name   string
		field  string
		modify func(*Configuration)
	}{
		{"workers", "num_workers", func(c *Configuration) { c.NumWorkers = 0 }},
		{"channel", "channels", func(c *Configuration) { c.Channels = []int{8} }},
		{"order", "shaper.order", func(c *Configuration) { c.Shaper.Order = 0 }},
		{"duplicated", "shaper.peaking_times", func(c *Configuration) { c.Shaper.PeakingTimes = []float64{1e-6, 1e-6} }},
		{"decay", "shaper.decay_time", func(c *Configuration) { c.Shaper.DecayTime = 0 }},
		{"band", "histogram.peak_low", func(c *Configuration) { c.Histogram.PeakHigh = 200 }},
		{"window", "histogram.bounds_window", func(c *Configuration) { c.Histogram.BoundsWindow = 1 }},
		{"start", "noise_model.start", func(c *Configuration) { c.NoiseModel.Start = []float64{1, 1e-5, 1} }},
		{"scale", "noise_model.energy_scale", func(c *Configuration) { c.NoiseModel.EnergyScale = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			config := DefaultConfiguration()
			tc.modify(&config)
			err := config.Validate()
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, tc.field, cfgErr.Field)
		})
	}
}
