package h5store

import (
	"fmt"

	hdf5 "github.com/jmbenlloch/go-hdf5"
	shaper "github.com/next-exp/shaper_go/pkg"
)

// Writer stores raw waveforms in the layout read by Reader: the digitizer
// metadata in /Run/digitizer and one [events x samples] uint16 array per
// channel in /ch<N>/waveform.
type Writer struct {
	File        *hdf5.File
	Filename    string
	RunGroup    *hdf5.Group
	Digitizer   *hdf5.Dataset
	Meta        shaper.DigitizerMetadata
	Compression int
	groups      map[int]*hdf5.Group
	waveforms   map[int]*hdf5.Dataset
}

func NewWriter(filename string, meta shaper.DigitizerMetadata, compression int) (*Writer, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	f, err := hdf5.CreateFile(filename, hdf5.F_ACC_TRUNC)
	if err != nil {
		return nil, fmt.Errorf("error creating file %s: %w", filename, err)
	}
	w := &Writer{
		File:        f,
		Filename:    filename,
		Meta:        meta,
		Compression: compression,
		groups:      make(map[int]*hdf5.Group),
		waveforms:   make(map[int]*hdf5.Dataset),
	}
	w.RunGroup, err = f.CreateGroup(RunGroup)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating group %s: %w", RunGroup, err)
	}
	w.Digitizer, err = createTable(w.RunGroup, DigitizerTable, DigitizerHDF5{})
	if err != nil {
		w.Close()
		return nil, err
	}
	row := []DigitizerHDF5{toHDF5(meta)}
	if err := writeArrayToTable(w.Digitizer, &row); err != nil {
		w.Close()
		return nil, fmt.Errorf("error writing digitizer metadata: %w", err)
	}
	return w, nil
}

// WriteWaveforms appends events to the array of one channel.
func (w *Writer) WriteWaveforms(channel int, events []shaper.RawWaveform) error {
	if len(events) == 0 {
		return nil
	}
	nSamples := w.Meta.RecordLength
	dataset, err := w.channelArray(channel)
	if err != nil {
		return err
	}

	// The array MUST be allocated at creation, HDF5 reads it as one block
	data := make([]uint16, len(events)*nSamples)
	for i, event := range events {
		if len(event.Samples) != nSamples {
			return fmt.Errorf("event %d has %d samples, expected %d", event.EventID, len(event.Samples), nSamples)
		}
		copy(data[i*nSamples:], event.Samples)
	}
	if err := appendWaveforms(dataset, &data, len(events), nSamples); err != nil {
		return fmt.Errorf("error writing waveforms of channel %d: %w", channel, err)
	}
	return nil
}

func (w *Writer) channelArray(channel int) (*hdf5.Dataset, error) {
	if dataset, ok := w.waveforms[channel]; ok {
		return dataset, nil
	}
	name := ChannelGroup(channel)
	group, err := w.File.CreateGroup(name)
	if err != nil {
		return nil, fmt.Errorf("error creating group %s: %w", name, err)
	}
	dataset, err := createWaveformArray(group, WaveformArray, w.Meta.RecordLength, w.Compression)
	if err != nil {
		group.Close()
		return nil, err
	}
	w.groups[channel] = group
	w.waveforms[channel] = dataset
	return dataset, nil
}

func (w *Writer) Close() error {
	for _, dataset := range w.waveforms {
		dataset.Close()
	}
	for _, group := range w.groups {
		group.Close()
	}
	if w.Digitizer != nil {
		w.Digitizer.Close()
	}
	if w.RunGroup != nil {
		w.RunGroup.Close()
	}
	return w.File.Close()
}
