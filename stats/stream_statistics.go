package stats

import "time"

// StreamStatistics summarizes a stream of timestamped readings: how far
// apart they arrive and what values they carry.
type StreamStatistics struct {
	First         time.Time
	Last          time.Time
	NumValues     uint64
	IntervalStats *Welford
	ValueStats    *Welford
}

func NewStreamStatistics() *StreamStatistics {
	return &StreamStatistics{
		NumValues:     0,
		IntervalStats: NewWelford(),
		ValueStats:    NewWelford(),
	}
}

func (stream *StreamStatistics) Append(timestamp time.Time, value float64) {
	if stream.NumValues == 0 {
		stream.First = timestamp
	} else {
		stream.IntervalStats.Update(timestamp.Sub(stream.Last).Seconds())
	}
	stream.ValueStats.Update(value)
	stream.NumValues++
	stream.Last = timestamp
}

// MaxInterval is the widest spacing between consecutive readings.
func (stream *StreamStatistics) MaxInterval() time.Duration {
	if stream.NumValues < 2 {
		return 0
	}
	return time.Duration(stream.IntervalStats.GetMax() * float64(time.Second))
}

func (stream *StreamStatistics) MeanInterval() time.Duration {
	return time.Duration(stream.IntervalStats.GetMean() * float64(time.Second))
}
