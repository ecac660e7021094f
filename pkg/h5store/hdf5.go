package h5store

import (
	"fmt"

	hdf5 "github.com/jmbenlloch/go-hdf5"
	shaper "github.com/next-exp/shaper_go/pkg"
)

const (
	RunGroup       = "Run"
	DigitizerTable = "digitizer"
	WaveformArray  = "waveform"
)

// ChannelGroup is the group holding the waveforms of one channel.
func ChannelGroup(channel int) string {
	return fmt.Sprintf("ch%d", channel)
}

type DigitizerHDF5 struct {
	adcBits        int32
	recordLength   int32
	preTrigger     int32
	rangeLow       float64
	rangeHigh      float64
	sampleInterval float64
}

func toHDF5(meta shaper.DigitizerMetadata) DigitizerHDF5 {
	return DigitizerHDF5{
		adcBits:        int32(meta.ADCBits),
		recordLength:   int32(meta.RecordLength),
		preTrigger:     int32(meta.PreTrigger),
		rangeLow:       meta.RangeLow,
		rangeHigh:      meta.RangeHigh,
		sampleInterval: meta.SampleInterval,
	}
}

func (d DigitizerHDF5) metadata() shaper.DigitizerMetadata {
	return shaper.DigitizerMetadata{
		ADCBits:        int(d.adcBits),
		RangeLow:       d.rangeLow,
		RangeHigh:      d.rangeHigh,
		SampleInterval: d.sampleInterval,
		RecordLength:   int(d.recordLength),
		PreTrigger:     int(d.preTrigger),
	}
}

func createWaveformArray(group *hdf5.Group, name string, nSamples int, compression int) (*hdf5.Dataset, error) {
	dims := []uint{0, uint(nSamples)}
	unlimitedDims := -1 // H5S_UNLIMITED is -1L
	maxDims := []uint{uint(unlimitedDims), uint(nSamples)}
	chunks := []uint{1, uint(nSamples)}

	fileSpace, err := hdf5.CreateSimpleDataspace(dims, maxDims)
	if err != nil {
		return nil, fmt.Errorf("error creating dataspace: %w", err)
	}
	defer fileSpace.Close()

	plist, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	if err != nil {
		return nil, fmt.Errorf("error creating property list: %w", err)
	}
	defer plist.Close()
	plist.SetChunk(chunks)
	plist.SetDeflate(compression)

	dataset, err := group.CreateDatasetWith(name, hdf5.T_NATIVE_UINT16, fileSpace, plist)
	if err != nil {
		return nil, fmt.Errorf("error creating dataset %s: %w", name, err)
	}
	return dataset, nil
}

func createTable(group *hdf5.Group, name string, datatype interface{}) (*hdf5.Dataset, error) {
	dims := []uint{0}
	unlimitedDims := -1 // H5S_UNLIMITED is -1L
	maxDims := []uint{uint(unlimitedDims)}
	fileSpace, err := hdf5.CreateSimpleDataspace(dims, maxDims)
	if err != nil {
		return nil, fmt.Errorf("error creating dataspace: %w", err)
	}
	defer fileSpace.Close()

	plist, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	if err != nil {
		return nil, fmt.Errorf("error creating property list: %w", err)
	}
	defer plist.Close()
	plist.SetChunk([]uint{32})

	dtype, err := hdf5.NewDatatypeFromValue(datatype)
	if err != nil {
		return nil, fmt.Errorf("error creating datatype for %s: %w", name, err)
	}

	dataset, err := group.CreateDatasetWith(name, dtype, fileSpace, plist)
	if err != nil {
		return nil, fmt.Errorf("error creating table %s: %w", name, err)
	}
	return dataset, nil
}

func writeArrayToTable[T any](dataset *hdf5.Dataset, data *[]T) error {
	length := uint(len(*data))
	dataspace, err := hdf5.CreateSimpleDataspace([]uint{length}, nil)
	if err != nil {
		return err
	}
	defer dataspace.Close()

	// extend
	space := dataset.Space()
	dims, _, err := space.SimpleExtentDims()
	space.Close()
	if err != nil {
		return err
	}
	rowsInFile := dims[0]
	if err := dataset.Resize([]uint{rowsInFile + length}); err != nil {
		return err
	}
	filespace := dataset.Space()
	defer filespace.Close()

	if err := filespace.SelectHyperslab([]uint{rowsInFile}, nil, []uint{length}, nil); err != nil {
		return err
	}
	return dataset.WriteSubset(data, dataspace, filespace)
}

// appendWaveforms extends a [events x samples] array with rows of nSamples.
func appendWaveforms(dataset *hdf5.Dataset, data *[]uint16, nEvents int, nSamples int) error {
	space := dataset.Space()
	dims, _, err := space.SimpleExtentDims()
	space.Close()
	if err != nil {
		return err
	}
	eventsInFile := dims[0]
	if err := dataset.Resize([]uint{eventsInFile + uint(nEvents), uint(nSamples)}); err != nil {
		return err
	}
	filespace := dataset.Space()
	defer filespace.Close()

	count := []uint{uint(nEvents), uint(nSamples)}
	if err := filespace.SelectHyperslab([]uint{eventsInFile, 0}, nil, count, nil); err != nil {
		return err
	}
	dataspace, err := hdf5.CreateSimpleDataspace(count, nil)
	if err != nil {
		return err
	}
	defer dataspace.Close()
	return dataset.WriteSubset(data, dataspace, filespace)
}
