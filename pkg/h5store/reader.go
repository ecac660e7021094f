package h5store

import (
	"fmt"
	"sync"

	hdf5 "github.com/jmbenlloch/go-hdf5"
	shaper "github.com/next-exp/shaper_go/pkg"
)

// Reader is a shaper.WaveformSource backed by a file written by Writer.
// Reads are serialized since the HDF5 library is not thread safe.
type Reader struct {
	mu       sync.Mutex
	file     *hdf5.File
	Filename string
	meta     shaper.DigitizerMetadata
}

var _ shaper.WaveformSource = (*Reader)(nil)

func Open(filename string) (*Reader, error) {
	f, err := hdf5.OpenFile(filename, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, fmt.Errorf("error opening file %s: %w", filename, err)
	}
	r := &Reader{file: f, Filename: filename}
	if err := r.readMetadata(); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) readMetadata() error {
	group, err := r.file.OpenGroup(RunGroup)
	if err != nil {
		return fmt.Errorf("error opening group %s: %w", RunGroup, err)
	}
	defer group.Close()
	dataset, err := group.OpenDataset(DigitizerTable)
	if err != nil {
		return fmt.Errorf("error opening table %s: %w", DigitizerTable, err)
	}
	defer dataset.Close()

	space := dataset.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return err
	}
	if len(dims) != 1 || dims[0] < 1 {
		return fmt.Errorf("table %s is empty", DigitizerTable)
	}
	rows := make([]DigitizerHDF5, dims[0])
	if err := dataset.Read(&rows); err != nil {
		return fmt.Errorf("error reading digitizer metadata: %w", err)
	}
	r.meta = rows[0].metadata()
	return r.meta.Validate()
}

func (r *Reader) Metadata() shaper.DigitizerMetadata {
	return r.meta
}

func (r *Reader) openArray(channel int) (*hdf5.Group, *hdf5.Dataset, error) {
	name := ChannelGroup(channel)
	group, err := r.file.OpenGroup(name)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening group %s: %w", name, err)
	}
	dataset, err := group.OpenDataset(WaveformArray)
	if err != nil {
		group.Close()
		return nil, nil, fmt.Errorf("error opening array %s/%s: %w", name, WaveformArray, err)
	}
	return group, dataset, nil
}

func (r *Reader) NumEvents(channel int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	group, dataset, err := r.openArray(channel)
	if err != nil {
		return 0, err
	}
	defer group.Close()
	defer dataset.Close()

	space := dataset.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return 0, err
	}
	return int(dims[0]), nil
}

// ReadEvents reads up to count events starting at start. Event ids are the
// row numbers in the array.
func (r *Reader) ReadEvents(channel int, start int, count int) ([]shaper.RawWaveform, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	group, dataset, err := r.openArray(channel)
	if err != nil {
		return nil, err
	}
	defer group.Close()
	defer dataset.Close()

	filespace := dataset.Space()
	defer filespace.Close()
	dims, _, err := filespace.SimpleExtentDims()
	if err != nil {
		return nil, err
	}
	nEvents, nSamples := int(dims[0]), int(dims[1])
	if nSamples != r.meta.RecordLength {
		return nil, fmt.Errorf("channel %d has records of %d samples, metadata says %d", channel, nSamples, r.meta.RecordLength)
	}
	if start < 0 || start > nEvents {
		return nil, fmt.Errorf("start %d outside [0, %d] for channel %d", start, nEvents, channel)
	}
	if start+count > nEvents {
		count = nEvents - start
	}
	if count <= 0 {
		return nil, nil
	}

	shape := []uint{uint(count), uint(nSamples)}
	if err := filespace.SelectHyperslab([]uint{uint(start), 0}, nil, shape, nil); err != nil {
		return nil, err
	}
	memspace, err := hdf5.CreateSimpleDataspace(shape, nil)
	if err != nil {
		return nil, err
	}
	defer memspace.Close()

	data := make([]uint16, count*nSamples)
	if err := dataset.ReadSubset(&data, memspace, filespace); err != nil {
		return nil, fmt.Errorf("error reading waveforms of channel %d: %w", channel, err)
	}

	events := make([]shaper.RawWaveform, count)
	for i := range events {
		events[i] = shaper.RawWaveform{
			Channel: channel,
			EventID: start + i,
			Samples: data[i*nSamples : (i+1)*nSamples : (i+1)*nSamples],
		}
	}
	return events, nil
}

func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}
