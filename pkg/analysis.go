package shaper

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ChannelResult is the outcome of analyzing one channel. Failed resolution
// points are kept in Gaps; a failed noise model leaves NoiseModel nil and the
// error in NoiseModelErr.
type ChannelResult struct {
	Channel       int
	Strip         string
	Shaping       ShapingResult
	Points        []ResolutionPoint
	Gaps          []ResolutionPoint
	NoiseModel    *NoiseModelFit
	NoiseModelErr error
	Belt          ErrorBelt
	Err           error
}

// Analysis runs the full chain on every active channel of a waveform source.
type Analysis struct {
	id         uuid.UUID
	config     Configuration
	src        WaveformSource
	meta       DigitizerMetadata
	table      ChannelTable
	constants  Constants
	policy     OrderPolicy
	renderer   EventRenderer
	processors [NumChannels]*Processor
}

type AnalysisOption func(*Analysis)

// WithChannelTable replaces the channel table built from the configuration.
func WithChannelTable(table ChannelTable) AnalysisOption {
	return func(a *Analysis) {
		a.table = table
	}
}

func WithConstants(c Constants) AnalysisOption {
	return func(a *Analysis) {
		a.constants = c
	}
}

func WithOrderPolicy(policy OrderPolicy) AnalysisOption {
	return func(a *Analysis) {
		a.policy = policy
	}
}

func WithEventRenderer(r EventRenderer) AnalysisOption {
	return func(a *Analysis) {
		a.renderer = r
	}
}

// NewAnalysis validates the configuration and designs the filters of every
// active channel. No event is read before all of them succeed.
func NewAnalysis(config Configuration, src WaveformSource, opts ...AnalysisOption) (*Analysis, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	a := &Analysis{
		id:        uuid.New(),
		config:    config,
		src:       src,
		meta:      src.Metadata(),
		table:     NewChannelTable(config),
		constants: DefaultConstants(),
		policy:    config.Shaper.Policy(),
	}
	for _, o := range opts {
		o(a)
	}

	var procOpts []ProcessorOption
	if a.renderer != nil && config.RenderEvents {
		procOpts = append(procOpts, WithRenderer(a.renderer))
	}
	for _, ch := range a.table.ActiveChannels() {
		chConfig := config
		chConfig.Shaper.DecayTime = a.table[ch].DecayTime
		p, err := NewProcessor(chConfig, a.meta, a.policy, procOpts...)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", ch, err)
		}
		a.processors[ch] = p
	}
	return a, nil
}

// ID identifies the run in log messages.
func (a *Analysis) ID() uuid.UUID {
	return a.id
}

func (a *Analysis) Table() ChannelTable {
	return a.table
}

// Analyze runs every active channel in turn.
func (a *Analysis) Analyze() []ChannelResult {
	var results []ChannelResult
	for _, ch := range a.table.ActiveChannels() {
		result, err := a.AnalyzeChannel(ch)
		if err != nil {
			logger.Error(fmt.Sprintf("run %s: %v", a.id, err))
			result.Err = err
		}
		results = append(results, result)
	}
	return results
}

// AnalyzeChannel shapes the events of one channel, extracts one resolution
// per peaking time and fits the noise model. Only a failure to read the
// waveforms is returned as an error.
func (a *Analysis) AnalyzeChannel(channel int) (ChannelResult, error) {
	result := ChannelResult{Channel: channel, Strip: StripName(channel)}
	if channel < 0 || channel >= NumChannels || a.processors[channel] == nil {
		return result, fmt.Errorf("channel %d is not active", channel)
	}
	result.Strip = a.table[channel].Strip
	a.info(fmt.Sprintf("Shaping channel %d (%s)", channel, result.Strip))

	shaping, err := a.processors[channel].ProcessSource(a.src, channel)
	result.Shaping = shaping
	if err != nil {
		return result, err
	}
	if len(shaping.Failures) > 0 {
		a.info(fmt.Sprintf("Channel %d: %d events degraded or rejected", channel, len(shaping.Failures)))
	}

	for k, pt := range shaping.PeakingTimes {
		point, err := ExtractResolution(shaping.Energy[k], a.config.Histogram)
		point.PeakingTime = pt
		if err != nil {
			var fitErr *FitConvergenceError
			if errors.As(err, &fitErr) {
				fitErr.PeakingTime = pt
			}
			point.Err = err
			result.Gaps = append(result.Gaps, point)
			logger.Warn(fmt.Sprintf("run %s: channel %d: %v", a.id, channel, err), "resolution")
			continue
		}
		result.Points = append(result.Points, point)
		if a.config.Verbosity > 0 {
			message := fmt.Sprintf("Channel %d, peaking time %g s: FWHM %.4f +- %.4f mV", channel, pt, point.Resolution, point.ResolutionErr)
			a.info(message)
		}
	}

	fit, err := a.fitNoiseModel(channel, result.Points)
	if err != nil {
		result.NoiseModelErr = err
		logger.Warn(fmt.Sprintf("run %s: channel %d: %v", a.id, channel, err), "noisemodel")
		return result, nil
	}
	for _, w := range fit.Warnings {
		logger.Warn(fmt.Sprintf("run %s: channel %d: %v", a.id, channel, w), "noisemodel")
	}
	result.NoiseModel = &fit
	times := make([]float64, len(result.Points))
	for i, p := range result.Points {
		times[i] = p.PeakingTime
	}
	result.Belt = NewErrorBelt(fit.Params, fit.Errors, BeltDomain(times, a.config.NoiseModel.BeltPoints))
	return result, nil
}

func (a *Analysis) fitNoiseModel(channel int, points []ResolutionPoint) (NoiseModelFit, error) {
	scale := a.config.NoiseModel.EnergyScale
	times := make([]float64, len(points))
	res := make([]float64, len(points))
	errs := make([]float64, len(points))
	for i, p := range points {
		times[i] = p.PeakingTime
		res[i] = p.Resolution * scale
		errs[i] = p.ResolutionErr * scale
	}
	config := a.config.NoiseModel
	config.Temperature = a.table[channel].Temperature

	fit, err := FitNoiseModel(times, res, errs, config)
	if err != nil {
		return fit, err
	}
	fit.Translate(a.constants)
	return fit, nil
}

func (a *Analysis) info(message string) {
	logger.Info(fmt.Sprintf("run %s: %s", a.id, message), "analysis")
}
