package ports

// Metrics records operational counters, gauges, and latencies. Names not
// registered by the backend are ignored.
type Metrics interface {
	IncCounter(name string, v float64)
	SetGauge(name string, v float64)
	ObserveLatency(name string, seconds float64)
}
