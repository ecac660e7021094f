package shaper

import (
	"fmt"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Histogram has equal-width bins over [Edges[0], Edges[len-1]).
type Histogram struct {
	Edges  []float64
	Counts []float64
}

// NewHistogram fills a histogram with the values inside [low, high). Values
// outside the range are dropped.
func NewHistogram(values []float64, bins int, low, high float64) (Histogram, error) {
	if bins < 1 || high <= low {
		return Histogram{}, fmt.Errorf("invalid histogram: %d bins over [%g, %g)", bins, low, high)
	}
	inRange := make([]float64, 0, len(values))
	for _, v := range values {
		if v >= low && v < high {
			inRange = append(inRange, v)
		}
	}
	slices.Sort(inRange)

	edges := floats.Span(make([]float64, bins+1), low, high)
	edges[bins] = high
	counts := stat.Histogram(nil, edges, inRange, nil)
	return Histogram{Edges: edges, Counts: counts}, nil
}

func (h Histogram) Bins() int {
	return len(h.Counts)
}

func (h Histogram) BinWidth() float64 {
	return h.Edges[1] - h.Edges[0]
}

func (h Histogram) Center(i int) float64 {
	return 0.5 * (h.Edges[i] + h.Edges[i+1])
}

func (h Histogram) Entries() int {
	return int(floats.Sum(h.Counts))
}

// BandBins returns the first and one-past-last bin whose centre lies inside
// [low, high].
func (h Histogram) BandBins(low, high float64) (first int, last int) {
	first, last = -1, -1
	for i := range h.Counts {
		c := h.Center(i)
		if c < low || c > high {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i + 1
	}
	if first < 0 {
		return 0, 0
	}
	return first, last
}

// MaxBin returns the fullest bin inside [low, high]. ok is false when the
// band holds no entries.
func (h Histogram) MaxBin(low, high float64) (bin int, ok bool) {
	first, last := h.BandBins(low, high)
	if first == last {
		return 0, false
	}
	bin = first + floats.MaxIdx(h.Counts[first:last])
	return bin, h.Counts[bin] > 0
}

// HalfMaxWidth walks out of the peak bin until the content drops below half
// of the peak and returns the width spanned by the bins above it.
func (h Histogram) HalfMaxWidth(peak int) float64 {
	half := h.Counts[peak] / 2
	left := peak
	for left > 0 && h.Counts[left-1] >= half {
		left--
	}
	right := peak
	for right < len(h.Counts)-1 && h.Counts[right+1] >= half {
		right++
	}
	return float64(right-left+1) * h.BinWidth()
}
