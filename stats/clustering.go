package stats

import (
	"gonum.org/v1/gonum/floats"
	"math"
	"sort"
)

const maxLloydIterations = 100

// Cluster summarizes the values assigned to one side of a split.
type Cluster struct {
	Mean  float64
	SD    float64
	Min   float64
	Max   float64
	Count int
}

func newCluster(welford *Welford) Cluster {
	return Cluster{
		Mean:  welford.GetMean(),
		SD:    welford.GetPopulationSD(),
		Min:   welford.GetMin(),
		Max:   welford.GetMax(),
		Count: int(welford.GetCount()),
	}
}

// TwoMeans splits values into a low and a high cluster with Lloyd's
// algorithm, starting from the smallest and largest value. ok is false when
// there are no values or all values are equal.
func TwoMeans(values []float64) (low Cluster, high Cluster, ok bool) {
	if len(values) == 0 {
		return Cluster{}, Cluster{}, false
	}
	c0, c1 := floats.Min(values), floats.Max(values)
	if c0 == c1 {
		return Cluster{}, Cluster{}, false
	}

	var w0, w1 *Welford
	for iteration := 0; iteration < maxLloydIterations; iteration++ {
		w0, w1 = NewWelford(), NewWelford()
		for _, value := range values {
			if math.Abs(value-c0) <= math.Abs(value-c1) {
				w0.Update(value)
			} else {
				w1.Update(value)
			}
		}
		n0, n1 := w0.GetMean(), w1.GetMean()
		if n0 == c0 && n1 == c1 {
			break
		}
		c0, c1 = n0, n1
	}
	return newCluster(w0), newCluster(w1), true
}

// UpperQuantile returns the smallest threshold such that at least
// ceil(fraction*len(values)) of the values are greater than or equal to it.
func UpperQuantile(values []float64, fraction float64) float64 {
	if len(values) == 0 || fraction <= 0 {
		return math.Inf(1)
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	k := int(math.Ceil(fraction * float64(len(sorted))))
	if k > len(sorted) {
		k = len(sorted)
	}
	return sorted[len(sorted)-k]
}
