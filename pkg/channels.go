package shaper

import (
	"fmt"
)

// NumChannels is the number of digitizer channels, one per detector strip.
const NumChannels = 8

var stripNames = [NumChannels]string{
	"stripA", "stripB", "stripC", "stripD", "stripE", "stripF", "stripG", "stripH",
}

// StripName returns the detector strip read out by a channel.
func StripName(channel int) string {
	if channel < 0 || channel >= NumChannels {
		return fmt.Sprintf("ch%d", channel)
	}
	return stripNames[channel]
}

// ParameterAccessor reads and writes named numeric settings.
type ParameterAccessor interface {
	GetParameter(name string) (float64, error)
	SetParameter(name string, value float64) error
}

const (
	ParamActive      = "active"
	ParamDecayTime   = "decay_time"
	ParamTemperature = "temperature"
)

// ChannelSettings are the per-channel overrides of the analysis.
type ChannelSettings struct {
	Channel     int
	Strip       string
	Active      bool
	DecayTime   float64 // seconds
	Temperature float64 // Celsius
}

func (c *ChannelSettings) GetParameter(name string) (float64, error) {
	switch name {
	case ParamActive:
		if c.Active {
			return 1, nil
		}
		return 0, nil
	case ParamDecayTime:
		return c.DecayTime, nil
	case ParamTemperature:
		return c.Temperature, nil
	}
	return 0, fmt.Errorf("unknown parameter %q for channel %d", name, c.Channel)
}

func (c *ChannelSettings) SetParameter(name string, value float64) error {
	switch name {
	case ParamActive:
		c.Active = value != 0
	case ParamDecayTime:
		if value <= 0 {
			return configErrorf(ParamDecayTime, "channel %d: must be positive, got %g", c.Channel, value)
		}
		c.DecayTime = value
	case ParamTemperature:
		c.Temperature = value
	default:
		return fmt.Errorf("unknown parameter %q for channel %d", name, c.Channel)
	}
	return nil
}

// ChannelTable holds the settings of every channel indexed by channel id.
type ChannelTable [NumChannels]ChannelSettings

// NewChannelTable activates the configured channels with the global decay
// time and temperature.
func NewChannelTable(config Configuration) ChannelTable {
	var table ChannelTable
	for ch := range table {
		table[ch] = ChannelSettings{
			Channel:     ch,
			Strip:       stripNames[ch],
			DecayTime:   config.Shaper.DecayTime,
			Temperature: config.NoiseModel.Temperature,
		}
	}
	for _, ch := range config.Channels {
		if ch >= 0 && ch < NumChannels {
			table[ch].Active = true
		}
	}
	return table
}

// Accessor returns the parameter accessor of one channel.
func (t *ChannelTable) Accessor(channel int) (ParameterAccessor, error) {
	if channel < 0 || channel >= NumChannels {
		return nil, fmt.Errorf("channel %d outside [0, %d)", channel, NumChannels)
	}
	return &t[channel], nil
}

// ActiveChannels returns the ids of the active channels in ascending order.
func (t ChannelTable) ActiveChannels() []int {
	var active []int
	for ch := range t {
		if t[ch].Active {
			active = append(active, ch)
		}
	}
	return active
}
