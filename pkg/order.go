package shaper

// OrderPolicy picks the shaper order for a peaking time. Implementations must
// be pure: the processor calls them once per peaking time, up front.
type OrderPolicy func(peakingTime float64) int

func FixedOrder(order int) OrderPolicy {
	return func(float64) int {
		return order
	}
}

// ThresholdOrder switches to a higher order above threshold (seconds). Long
// peaking times need more poles to keep the pulse shape close to Gaussian.
func ThresholdOrder(low, high int, threshold float64) OrderPolicy {
	return func(peakingTime float64) int {
		if peakingTime <= threshold {
			return low
		}
		return high
	}
}
