package services

import (
	"math"

	"tickwatch/internal/models"
)

// ExtremaAccumulator tracks min, max and mean of float samples since its
// last drain. It is not safe for concurrent use; its owner guards it.
type ExtremaAccumulator struct {
	count int
	total float64
	min   float64
	max   float64
}

// Push adds a sample. NaN samples are dropped.
func (a *ExtremaAccumulator) Push(sample float64) {
	if math.IsNaN(sample) {
		return
	}
	if a.count == 0 {
		a.min = sample
		a.max = sample
	} else {
		a.min = math.Min(a.min, sample)
		a.max = math.Max(a.max, sample)
	}
	a.count++
	a.total += sample
}

// Summary returns the samples accumulated so far without resetting.
func (a *ExtremaAccumulator) Summary() models.ExtremaSummary {
	if a.count == 0 {
		return models.ExtremaSummary{}
	}
	return models.ExtremaSummary{
		Count: a.count,
		Min:   a.min,
		Max:   a.max,
		Mean:  a.total / float64(a.count),
	}
}

// Take returns the summary and leaves the accumulator empty.
func (a *ExtremaAccumulator) Take() models.ExtremaSummary {
	summary := a.Summary()
	*a = ExtremaAccumulator{}
	return summary
}
