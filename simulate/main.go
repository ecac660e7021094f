package main

import (
	"flag"
	"fmt"

	shaper "github.com/next-exp/shaper_go/pkg"
	"github.com/next-exp/shaper_go/pkg/h5store"
)

var logger shaper.SlogLogger

func init() {
	logger = shaper.NewStdLogger()
}

func main() {
	configFilename := flag.String("config", "", "Configuration file path")
	compression := flag.Int("compression", 4, "Deflate level")
	flag.Parse()

	configuration, err := shaper.LoadConfiguration(*configFilename)
	if err != nil {
		message := fmt.Errorf("Error reading configuration file: %w", err)
		logger.Error(message.Error())
		return
	}
	shaper.SetLogger(logger)
	if err := configuration.Validate(); err != nil {
		logger.Error(err.Error())
		return
	}
	sim := configuration.Simulation
	if err := sim.Validate(); err != nil {
		logger.Error(err.Error())
		return
	}

	writer, err := h5store.NewWriter(sim.FileOut, sim.Metadata(), *compression)
	if err != nil {
		logger.Error(err.Error())
		return
	}
	defer writer.Close()

	for _, ch := range configuration.Channels {
		rng := shaper.NewRand(sim.Seed + uint64(ch))
		remaining := sim.Events
		for remaining > 0 {
			chunk := sim
			chunk.Events = min(remaining, configuration.ChunkSize)
			events := shaper.SimulateTailPulses(chunk, ch, rng)
			offset := sim.Events - remaining
			for i := range events {
				events[i].EventID += offset
			}
			if err := writer.WriteWaveforms(ch, events); err != nil {
				logger.Error(err.Error())
				return
			}
			remaining -= chunk.Events
		}
		if configuration.Verbosity > 0 {
			message := fmt.Sprintf("Wrote %d events for channel %d (%s)", sim.Events, ch, shaper.StripName(ch))
			logger.Info(message, "simulate")
		}
	}
}
