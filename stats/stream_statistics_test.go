package stats

import (
	"github.com/stretchr/testify/assert"
	"nilmprep/utils"
	"testing"
	"time"
)

func TestStreamStatistics(t *testing.T) {
	stream := NewStreamStatistics()
	assert.Equal(t, time.Duration(0), stream.MaxInterval())

	epoch := time.Date(2013, 3, 17, 0, 0, 0, 0, time.UTC)
	for i, offset := range []int{0, 6, 12, 30, 36} {
		stream.Append(epoch.Add(time.Duration(offset)*time.Second), float64(100*i))
	}

	assert.Equal(t, uint64(5), stream.NumValues)
	assert.Equal(t, epoch, stream.First)
	assert.Equal(t, epoch.Add(36*time.Second), stream.Last)
	assert.Equal(t, 18*time.Second, stream.MaxInterval())
	assert.Equal(t, 9*time.Second, stream.MeanInterval())
	utils.AssertClose(t, stream.ValueStats.GetMean(), 200, 1e-9)
}
