package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriceTracker_Empty(t *testing.T) {
	tr := NewPriceTracker(0)
	assert.Equal(t, 0, tr.Len())
	assert.Equal(t, 0.0, tr.Average())
}

func TestPriceTracker_Average(t *testing.T) {
	tr := NewPriceTracker(5)
	tr.Push(1)
	tr.Push(2)
	tr.Push(3)

	assert.Equal(t, 3, tr.Len())
	assert.InDelta(t, 2.0, tr.Average(), 0.0001)
}

func TestPriceTracker_EvictsOldest(t *testing.T) {
	tr := NewPriceTracker(3)
	tr.Push(10)
	tr.Push(20)
	tr.Push(30)
	tr.Push(40) // evicts 10

	assert.Equal(t, 3, tr.Len())
	assert.InDelta(t, 30.0, tr.Average(), 0.0001)
}

func TestPriceTracker_DefaultCapacity(t *testing.T) {
	tr := NewPriceTracker(0)
	for i := 0; i < 25; i++ {
		tr.Push(float64(i))
	}
	assert.Equal(t, PriceTrackerWindow, tr.Len())
	// Holds samples 15..24
	assert.InDelta(t, 19.5, tr.Average(), 0.0001)
}
