package domain

// PriceTrackerWindow is the number of recent samples kept per pair for the
// rolling-average drift baseline.
const PriceTrackerWindow = 10

// PriceTracker keeps a bounded sequence of recently quoted prices for one
// pair. When full, pushing a new sample evicts the oldest.
type PriceTracker struct {
	samples  []float64
	capacity int
}

// NewPriceTracker creates a tracker with the given capacity. A capacity of
// zero or less falls back to PriceTrackerWindow.
func NewPriceTracker(capacity int) *PriceTracker {
	if capacity <= 0 {
		capacity = PriceTrackerWindow
	}
	return &PriceTracker{capacity: capacity}
}

// Push appends a sample, evicting the oldest if the tracker is full.
func (t *PriceTracker) Push(price float64) {
	t.samples = append(t.samples, price)
	if len(t.samples) > t.capacity {
		t.samples = t.samples[1:]
	}
}

// Len returns the number of samples held.
func (t *PriceTracker) Len() int {
	return len(t.samples)
}

// Average returns the arithmetic mean of the held samples, or 0 if empty.
func (t *PriceTracker) Average() float64 {
	if len(t.samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range t.samples {
		sum += s
	}
	return sum / float64(len(t.samples))
}
