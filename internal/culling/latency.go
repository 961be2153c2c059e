package culling

import "time"

// LatencyEstimator estimates how far behind the server a client's view is.
// Overestimates widen peeks; underestimates risk popping.
type LatencyEstimator interface {
	Latency(observer int) time.Duration
}

// ConstantLatency reports the same latency for every observer.
type ConstantLatency time.Duration

// Latency implements LatencyEstimator.
func (l ConstantLatency) Latency(int) time.Duration {
	return time.Duration(l)
}
