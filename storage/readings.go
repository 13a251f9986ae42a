package storage

import (
	"sort"
	"time"
)

// PrepareSamples returns a sorted UTC copy of the readings with the store's
// cutoff and floor applied.
func PrepareSamples(samples []Sample, config StoreConfig) []Sample {
	prepared := make([]Sample, len(samples))
	for i, sample := range samples {
		value := sample.Value
		if value < 0 {
			value = 0
		}
		if config.Cutoff > 0 && value > config.Cutoff {
			value = config.Cutoff
		}
		if config.Floor > 0 && value < config.Floor {
			value = 0
		}
		prepared[i] = Sample{Timestamp: sample.Timestamp.UTC(), Value: value}
	}
	sort.SliceStable(prepared, func(i, j int) bool {
		return prepared[i].Timestamp.Before(prepared[j].Timestamp)
	})
	return prepared
}

// mergeSamples merges two sorted reading slices. On equal timestamps the
// newer reading wins.
func mergeSamples(old, added []Sample) []Sample {
	if len(old) == 0 {
		return dedupe(added)
	}
	merged := make([]Sample, 0, len(old)+len(added))
	i, j := 0, 0
	for i < len(old) || j < len(added) {
		switch {
		case j == len(added):
			merged = append(merged, old[i])
			i++
		case i == len(old):
			merged = append(merged, added[j])
			j++
		case old[i].Timestamp.Before(added[j].Timestamp):
			merged = append(merged, old[i])
			i++
		case added[j].Timestamp.Before(old[i].Timestamp):
			merged = append(merged, added[j])
			j++
		default:
			merged = append(merged, added[j])
			i++
			j++
		}
	}
	return dedupe(merged)
}

func dedupe(samples []Sample) []Sample {
	out := samples[:0:0]
	for _, sample := range samples {
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(sample.Timestamp) {
			out[n-1] = sample
			continue
		}
		out = append(out, sample)
	}
	return out
}

// FindSections splits sorted readings into maximal runs whose consecutive
// timestamps are at most maxGap apart. Each section ends one sample period
// after its last reading.
func FindSections(samples []Sample, period, maxGap time.Duration) []Section {
	sections := make([]Section, 0)
	if len(samples) == 0 {
		return sections
	}
	start := samples[0].Timestamp
	prev := start
	for _, sample := range samples[1:] {
		if sample.Timestamp.Sub(prev) > maxGap {
			sections = append(sections, Section{Start: start, End: prev.Add(period)})
			start = sample.Timestamp
		}
		prev = sample.Timestamp
	}
	return append(sections, Section{Start: start, End: prev.Add(period)})
}

// Resample maps sorted readings onto the grid start + k*period for every
// grid point in [start, end). A bucket takes the mean of the readings in
// [t, t+period). Empty buckets repeat the last reading while it is at most
// fillLimit old and are left out otherwise.
func Resample(
	samples []Sample,
	start time.Time,
	end time.Time,
	period time.Duration,
	fillLimit time.Duration) []Sample {
	if period <= 0 {
		return nil
	}
	start, end = start.UTC(), end.UTC()
	n := int(end.Sub(start) / period)
	if n <= 0 {
		return []Sample{}
	}

	i := sort.Search(len(samples), func(i int) bool {
		return !samples[i].Timestamp.Before(start)
	})
	var last Sample
	haveLast := false
	if i > 0 {
		last = samples[i-1]
		haveLast = true
	}

	out := make([]Sample, 0, n)
	for k := 0; k < n; k++ {
		t0 := start.Add(time.Duration(k) * period)
		t1 := t0.Add(period)
		sum, count := 0.0, 0
		for i < len(samples) && samples[i].Timestamp.Before(t1) {
			sum += samples[i].Value
			count++
			last = samples[i]
			haveLast = true
			i++
		}
		switch {
		case count > 0:
			out = append(out, Sample{Timestamp: t0, Value: sum / float64(count)})
		case haveLast && t0.Sub(last.Timestamp) <= fillLimit:
			out = append(out, Sample{Timestamp: t0, Value: last.Value})
		}
	}
	return out
}
