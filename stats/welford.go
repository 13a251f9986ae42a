package stats

import "math"

// Welford accumulates the running mean and variance of a stream of
// values in a single pass.
type Welford struct {
	count uint64
	mean  float64
	m2    float64
	min   float64
	max   float64
}

func NewWelford() *Welford {
	return &Welford{
		count: 0,
		mean:  0,
		m2:    0,
		min:   math.Inf(1),
		max:   math.Inf(-1),
	}
}

func (welford *Welford) Update(value float64) {
	welford.count++
	delta := value - welford.mean
	welford.mean += delta / float64(welford.count)
	delta2 := value - welford.mean
	welford.m2 += delta * delta2
	welford.min = math.Min(welford.min, value)
	welford.max = math.Max(welford.max, value)
}

func (welford *Welford) GetCount() uint64 {
	return welford.count
}

func (welford *Welford) GetMean() float64 {
	return welford.mean
}

func (welford *Welford) GetMin() float64 {
	return welford.min
}

func (welford *Welford) GetMax() float64 {
	return welford.max
}

// GetVariance is the population variance.
func (welford *Welford) GetVariance() float64 {
	if welford.count < 2 {
		return 0
	}
	return welford.m2 / float64(welford.count)
}

func (welford *Welford) GetSampleVariance() float64 {
	if welford.count < 2 {
		return 0
	}
	return welford.m2 / float64(welford.count-1)
}

func (welford *Welford) GetSD() float64 {
	return math.Sqrt(welford.GetSampleVariance())
}

func (welford *Welford) GetPopulationSD() float64 {
	return math.Sqrt(welford.GetVariance())
}

func (welford *Welford) GetCV() float64 {
	if welford.count < 2 {
		return 0
	}
	return welford.GetSD() / welford.GetMean()
}
