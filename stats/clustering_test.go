package stats

import (
	"github.com/stretchr/testify/assert"
	"math"
	"nilmprep/utils"
	"testing"
)

func TestTwoMeans(t *testing.T) {
	low, high, ok := TwoMeans([]float64{0, 10, 0, 12, 0, 10})
	assert.True(t, ok)
	assert.Equal(t, Cluster{Mean: 0, SD: 0, Min: 0, Max: 0, Count: 3}, low)
	assert.Equal(t, 3, high.Count)
	utils.AssertClose(t, high.Mean, 32.0/3, 1e-9)
	utils.AssertClose(t, high.SD, math.Sqrt(8.0/9), 1e-9)
	assert.Equal(t, 12.0, high.Max)
}

func TestTwoMeans_Uneven(t *testing.T) {
	low, high, ok := TwoMeans([]float64{0, 1, 2, 60, 100, 101})
	assert.True(t, ok)
	assert.Equal(t, 3, low.Count)
	assert.Equal(t, 3, high.Count)
	utils.AssertClose(t, low.Mean, 1, 1e-9)
	utils.AssertClose(t, high.Mean, 87, 1e-9)
	assert.Equal(t, 60.0, high.Min)
}

func TestTwoMeans_Degenerate(t *testing.T) {
	_, _, ok := TwoMeans(nil)
	assert.False(t, ok)
	_, _, ok = TwoMeans([]float64{4, 4, 4})
	assert.False(t, ok)
}

func TestUpperQuantile(t *testing.T) {
	values := []float64{5, 1, 4, 2, 3, 6, 8, 7, 10, 9}
	assert.Equal(t, 8.0, UpperQuantile(values, 0.3))
	assert.Equal(t, 1.0, UpperQuantile(values, 1))
	assert.Equal(t, 10.0, UpperQuantile(values, 0.01))
	assert.True(t, math.IsInf(UpperQuantile(values, 0), 1))
	assert.True(t, math.IsInf(UpperQuantile(nil, 0.5), 1))
	// Input order is preserved.
	assert.Equal(t, 5.0, values[0])
}
