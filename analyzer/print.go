package main

import (
	"fmt"

	shaper "github.com/next-exp/shaper_go/pkg"
)

func printConfiguration(config shaper.Configuration, logger shaper.Logger) {
	logger.Info(fmt.Sprintf("File in: %s", config.FileIn), "config")
	logger.Info(fmt.Sprintf("Channels: %v", config.Channels), "config")
	logger.Info(fmt.Sprintf("Skip: %d", config.Skip), "config")
	logger.Info(fmt.Sprintf("Max events: %d", config.MaxEvents), "config")
	logger.Info(fmt.Sprintf("Chunk size: %d", config.ChunkSize), "config")
	logger.Info(fmt.Sprintf("Verbosity: %d", config.Verbosity), "config")
	logger.Info(fmt.Sprintf("Number of workers: %d", config.NumWorkers), "config")
	logger.Info(fmt.Sprintf("Baseline window: %d", config.BaselineWindow), "config")
	logger.Info(fmt.Sprintf("Render events: %t", config.RenderEvents), "config")
	logger.Info(fmt.Sprintf("Shaper order: %d", config.Shaper.Order), "config")
	logger.Info(fmt.Sprintf("Peaking times: %v", config.Shaper.PeakingTimes), "config")
	logger.Info(fmt.Sprintf("Decay time: %g", config.Shaper.DecayTime), "config")
	logger.Info(fmt.Sprintf("Dynamic order: %t", config.Shaper.DynamicOrder), "config")
	logger.Info(fmt.Sprintf("Order threshold: %g", config.Shaper.OrderThreshold), "config")
	logger.Info(fmt.Sprintf("High order: %d", config.Shaper.HighOrder), "config")
	logger.Info(fmt.Sprintf("Normalize gain: %t", config.Shaper.NormalizeGain), "config")
	logger.Info(fmt.Sprintf("Histogram: %d bins in [%g, %g]", config.Histogram.Bins, config.Histogram.Low, config.Histogram.High), "config")
	logger.Info(fmt.Sprintf("Peak band: [%g, %g]", config.Histogram.PeakLow, config.Histogram.PeakHigh), "config")
	logger.Info(fmt.Sprintf("Noise model start: %v", config.NoiseModel.Start), "config")
	logger.Info(fmt.Sprintf("Noise model bounds: %v %v", config.NoiseModel.Lower, config.NoiseModel.Upper), "config")
	logger.Info(fmt.Sprintf("Temperature: %g", config.NoiseModel.Temperature), "config")
	logger.Info(fmt.Sprintf("Energy scale: %g", config.NoiseModel.EnergyScale), "config")
	logger.Info(fmt.Sprintf("No DB: %t", config.Database.NoDB), "config")
	logger.Info(fmt.Sprintf("Host: %s", config.Database.Host), "config")
	logger.Info(fmt.Sprintf("DB name: %s", config.Database.DBName), "config")
	logger.Info(fmt.Sprintf("Run number: %d", config.Database.RunNumber), "config")
}

func printResult(result shaper.ChannelResult, logger shaper.Logger) {
	module := result.Strip
	if result.Err != nil {
		logger.Error(fmt.Sprintf("%s: %v", result.Strip, result.Err))
		return
	}
	logger.Info(fmt.Sprintf("Events: %d, failures: %d", result.Shaping.Events(), len(result.Shaping.Failures)), module)
	for _, p := range result.Points {
		logger.Info(fmt.Sprintf("Tp %g s: FWHM %.4f +- %.4f mV (chi2/ndf %.2f)", p.PeakingTime, p.Resolution, p.ResolutionErr, p.Chi2NDF), module)
	}
	for _, p := range result.Gaps {
		logger.Info(fmt.Sprintf("Tp %g s: no resolution (%v)", p.PeakingTime, p.Err), module)
	}
	if result.NoiseModel == nil {
		logger.Info(fmt.Sprintf("No noise model: %v", result.NoiseModelErr), module)
		return
	}
	fit := result.NoiseModel
	for i := range fit.Params {
		logger.Info(fmt.Sprintf("p%d = %.4e +- %.4e", i, fit.Params[i], fit.Errors[i]), module)
	}
	logger.Info(fmt.Sprintf("chi2/ndf = %.2f", fit.Chi2NDF), module)
	phys := fit.Physical
	logger.Info(fmt.Sprintf("Ileak = %.3e +- %.3e nA", phys.Ileak*1e9, phys.IleakErr*1e9), module)
	logger.Info(fmt.Sprintf("Rs = %.3e +- %.3e Ohm", phys.Rs, phys.RsErr), module)
	logger.Info(fmt.Sprintf("Af = %.3e +- %.3e x1e-13 V^2", phys.Af*1e13, phys.AfErr*1e13), module)
}
