package shaper

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Batch is the unit of work handed to one worker.
type Batch struct {
	ID     int
	Events []RawWaveform
}

// BatchResult holds the reduced output of one batch. Slices are indexed by
// peaking time first and by event second.
type BatchResult struct {
	BatchID  int
	Energy   [][]float64
	Baseline [][]float64
	Charge   [][]float64
	Failures []error
	Err      error
}

// ShapingResult is the merged output of a whole run.
type ShapingResult struct {
	PeakingTimes []float64
	Orders       []int
	Energy       [][]float64 // mV
	Baseline     [][]float64 // counts
	Charge       [][]float64 // V s
	Failures     []error
}

func newShapingResult(peakingTimes []float64, orders []int) ShapingResult {
	n := len(peakingTimes)
	return ShapingResult{
		PeakingTimes: peakingTimes,
		Orders:       orders,
		Energy:       make([][]float64, n),
		Baseline:     make([][]float64, n),
		Charge:       make([][]float64, n),
	}
}

// Events is the number of shaped events per peaking time.
func (r ShapingResult) Events() int {
	if len(r.Energy) == 0 {
		return 0
	}
	return len(r.Energy[0])
}

// Index returns the position of a peaking time, or -1.
func (r ShapingResult) Index(peakingTime float64) int {
	for i, pt := range r.PeakingTimes {
		if pt == peakingTime {
			return i
		}
	}
	return -1
}

func (r *ShapingResult) merge(b BatchResult) {
	for k := range r.PeakingTimes {
		r.Energy[k] = append(r.Energy[k], b.Energy[k]...)
		r.Baseline[k] = append(r.Baseline[k], b.Baseline[k]...)
		r.Charge[k] = append(r.Charge[k], b.Charge[k]...)
	}
	r.Failures = append(r.Failures, b.Failures...)
	if b.Err != nil {
		r.Failures = append(r.Failures, b.Err)
	}
}

// Append concatenates another result with the same peaking times.
func (r *ShapingResult) Append(other ShapingResult) {
	r.merge(BatchResult{
		Energy:   other.Energy,
		Baseline: other.Baseline,
		Charge:   other.Charge,
		Failures: other.Failures,
	})
}

// EventRenderer receives every event and its shaped outputs for diagnostic
// plots. Rendering errors are logged and ignored.
type EventRenderer interface {
	RenderEvent(batchID int, eventID int, times []float64, volts []float64, peakingTimes []float64, shaped [][]float64) error
}

// Processor shapes events in parallel with one filter per peaking time.
type Processor struct {
	filters      []*ShaperFilter
	peakingTimes []float64
	orders       []int
	meta         DigitizerMetadata
	adc          ADC
	times        []float64
	window       int
	workers      int
	chunkSize    int
	skip         int
	maxEvents    int
	verbosity    int
	renderer     EventRenderer
}

type ProcessorOption func(*Processor)

// WithRenderer enables per-event diagnostic rendering. The worker count is
// capped by render_workers to bound memory.
func WithRenderer(r EventRenderer) ProcessorOption {
	return func(p *Processor) {
		p.renderer = r
	}
}

// NewProcessor validates the configuration against the digitizer metadata and
// designs every filter. All configuration errors surface here.
func NewProcessor(config Configuration, meta DigitizerMetadata, policy OrderPolicy, opts ...ProcessorOption) (*Processor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if config.BaselineWindow > meta.RecordLength {
		return nil, configErrorf("baseline_window", "window of %d samples exceeds record length %d",
			config.BaselineWindow, meta.RecordLength)
	}
	if meta.PreTrigger > 0 && config.BaselineWindow > meta.PreTrigger {
		return nil, configErrorf("baseline_window", "window of %d samples reaches past the trigger at sample %d",
			config.BaselineWindow, meta.PreTrigger)
	}
	if policy == nil {
		policy = config.Shaper.Policy()
	}

	p := &Processor{
		peakingTimes: append([]float64(nil), config.Shaper.PeakingTimes...),
		meta:         meta,
		adc:          meta.ADC(),
		times:        meta.Times(),
		window:       config.BaselineWindow,
		workers:      config.NumWorkers,
		chunkSize:    config.ChunkSize,
		skip:         config.Skip,
		maxEvents:    config.MaxEvents,
		verbosity:    config.Verbosity,
	}
	for _, o := range opts {
		o(p)
	}
	if p.renderer != nil && p.workers > config.RenderWorkers {
		p.workers = config.RenderWorkers
	}

	budget := TimingBudget{
		RecordLength: meta.RecordLength,
		FlatTop:      config.Shaper.FlatTop,
		Holdoff:      config.Shaper.Holdoff,
	}
	for _, pt := range p.peakingTimes {
		order := policy(pt)
		f, err := NewShaperFilter(ShaperParams{
			Order:          order,
			PeakingTime:    pt,
			DecayTime:      config.Shaper.DecayTime,
			SampleInterval: meta.SampleInterval,
			NormalizeGain:  config.Shaper.NormalizeGain,
		}, budget)
		if err != nil {
			return nil, err
		}
		p.filters = append(p.filters, f)
		p.orders = append(p.orders, order)
	}
	return p, nil
}

func (p *Processor) PeakingTimes() []float64 {
	return append([]float64(nil), p.peakingTimes...)
}

func (p *Processor) Workers() int {
	return p.workers
}

// Partition splits events into at most n batches of nearly equal size.
func Partition(events []RawWaveform, n int) []Batch {
	if n < 1 {
		n = 1
	}
	if n > len(events) {
		n = len(events)
	}
	batches := make([]Batch, 0, n)
	start := 0
	for i := 0; i < n; i++ {
		size := len(events) / n
		if i < len(events)%n {
			size++
		}
		batches = append(batches, Batch{ID: i, Events: events[start : start+size]})
		start += size
	}
	return batches
}

// Process shapes a set of events. Batches run in parallel and are merged once
// all of them are done; the order of events in the output is not preserved.
func (p *Processor) Process(events []RawWaveform) ShapingResult {
	merged := newShapingResult(p.peakingTimes, p.orders)
	batches := Partition(events, p.workers)
	if len(batches) == 0 {
		return merged
	}

	jobs := make(chan Batch, len(batches))
	results := make(chan BatchResult, len(batches))

	for w := 1; w <= p.workers && w <= len(batches); w++ {
		go p.worker(w, jobs, results)
	}
	go sendBatchesToWorkers(batches, jobs)

	for range batches {
		merged.merge(<-results)
	}
	return merged
}

// ProcessSource reads one channel in chunks of chunk_size events, honouring
// skip and max_events, and merges every chunk before reading the next.
func (p *Processor) ProcessSource(src WaveformSource, channel int) (ShapingResult, error) {
	merged := newShapingResult(p.peakingTimes, p.orders)

	nEvents, err := src.NumEvents(channel)
	if err != nil {
		return merged, fmt.Errorf("error counting events of channel %d: %w", channel, err)
	}
	last := nEvents
	if p.maxEvents < last {
		last = p.maxEvents
	}
	for start := p.skip; start < last; start += p.chunkSize {
		count := p.chunkSize
		if start+count > last {
			count = last - start
		}
		if p.verbosity > 0 {
			message := fmt.Sprintf("Reading events %d to %d of channel %d", start, start+count, channel)
			logger.Info(message, "processor")
		}
		events, err := src.ReadEvents(channel, start, count)
		if err != nil {
			return merged, fmt.Errorf("error reading events of channel %d: %w", channel, err)
		}
		merged.Append(p.Process(events))
	}
	return merged, nil
}

func sendBatchesToWorkers(batches []Batch, jobs chan<- Batch) {
	for _, batch := range batches {
		jobs <- batch
	}
	close(jobs)
}

func (p *Processor) worker(id int, jobs <-chan Batch, results chan<- BatchResult) {
	for batch := range jobs {
		if p.verbosity > 1 {
			message := fmt.Sprintf("Worker %d processing batch %d (%d events)", id, batch.ID, len(batch.Events))
			logger.Info(message, "processor")
		}
		results <- p.processBatch(batch)
	}
}

func (p *Processor) processBatch(batch Batch) (result BatchResult) {
	n := len(p.filters)
	result = BatchResult{
		BatchID:  batch.ID,
		Energy:   make([][]float64, n),
		Baseline: make([][]float64, n),
		Charge:   make([][]float64, n),
	}
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("batch %d recovered from panic: %v", batch.ID, r)
			logger.Error(result.Err.Error())
		}
	}()

	for _, event := range batch.Events {
		if len(event.Samples) != p.meta.RecordLength {
			err := &EventError{
				EventID: event.EventID,
				Err:     fmt.Errorf("record length %d, expected %d", len(event.Samples), p.meta.RecordLength),
			}
			result.Failures = append(result.Failures, err)
			logger.Error(err.Error())
			continue
		}
		corrected, err := CorrectBaseline(event, p.window, p.adc)
		if err != nil {
			result.Failures = append(result.Failures, &EventError{EventID: event.EventID, Err: err})
			continue
		}
		charge := Charge(corrected.Volts, p.times)

		var shapedAll [][]float64
		if p.renderer != nil {
			shapedAll = make([][]float64, n)
		}
		for k, f := range p.filters {
			energy, shaped, err := shapeEvent(f, event.EventID, corrected.Volts)
			if err != nil {
				result.Failures = append(result.Failures, err)
				if p.verbosity > 0 {
					logger.Warn(err.Error(), "processor")
				}
			}
			result.Energy[k] = append(result.Energy[k], energy)
			result.Baseline[k] = append(result.Baseline[k], corrected.Baseline)
			result.Charge[k] = append(result.Charge[k], charge)
			if shapedAll != nil {
				shapedAll[k] = shaped
			}
		}
		if p.renderer != nil {
			if err := p.renderEvent(batch.ID, event.EventID, corrected.Volts, shapedAll); err != nil {
				result.Failures = append(result.Failures, err)
				logger.Error(err.Error())
			}
		}
	}
	return result
}

// renderEvent hands one event to the renderer. A panicking renderer only
// loses its own event.
func (p *Processor) renderEvent(batchID int, eventID int, volts []float64, shaped [][]float64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &RenderError{EventID: eventID, Err: fmt.Errorf("recovered from panic: %v", r)}
		}
	}()
	if err := p.renderer.RenderEvent(batchID, eventID, p.times, volts, p.peakingTimes, shaped); err != nil {
		return &RenderError{EventID: eventID, Err: err}
	}
	return nil
}

// shapeEvent returns the peak of the shaped waveform in mV. Any failure
// degrades the result to zero energy.
func shapeEvent(f *ShaperFilter, eventID int, volts []float64) (energy float64, shaped []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			energy, shaped = 0, nil
			err = &FilterInstabilityError{
				EventID:     eventID,
				PeakingTime: f.PeakingTime,
				Err:         fmt.Errorf("recovered from panic: %v", r),
			}
		}
	}()

	shaped, err = f.Apply(volts)
	if err != nil {
		return 0, nil, &FilterInstabilityError{EventID: eventID, PeakingTime: f.PeakingTime, Err: err}
	}
	return 1e3 * floats.Max(shaped), shaped, nil
}
