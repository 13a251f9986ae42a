package storage

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"nilmprep/errs"
	"nilmprep/stats"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ParseLabels reads a UK-DALE labels.dat: one "<instance> <label>" per line.
func ParseLabels(r io.Reader) (map[int]string, error) {
	labels := make(map[int]string)
	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("labels line %d: expected 2 fields, got %d", line, len(fields))
		}
		instance, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("labels line %d: %w", line, err)
		}
		labels[instance] = fields[1]
	}
	return labels, scanner.Err()
}

// ParseChannel reads a UK-DALE channel_<n>.dat: one "<unix seconds> <watts>"
// per line. Fractional seconds are kept.
func ParseChannel(r io.Reader) ([]Sample, error) {
	samples := make([]Sample, 0)
	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("channel line %d: expected 2 fields, got %d", line, len(fields))
		}
		seconds, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("channel line %d: %w", line, err)
		}
		value, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("channel line %d: %w", line, err)
		}
		whole, fraction := math.Modf(seconds)
		samples = append(samples, Sample{
			Timestamp: time.Unix(int64(whole), int64(fraction*1e9)).UTC(),
			Value:     value,
		})
	}
	return samples, scanner.Err()
}

// IsSiteLabel reports whether a channel label names the whole-house meter.
func IsSiteLabel(label string) bool {
	switch strings.ToLower(label) {
	case "aggregate", "mains", "site_meter":
		return true
	}
	return false
}

// ImportedChannel is one channel written by ImportUKDALE with the
// statistics of its raw readings.
type ImportedChannel struct {
	Meter Meter
	Stats *stats.StreamStatistics
}

// ImportUKDALE loads every labelled channel of a UK-DALE house directory
// into store. Labels without a channel file are skipped.
func ImportUKDALE(store WritableStore, dir string, building int, period time.Duration) ([]ImportedChannel, error) {
	if period <= 0 {
		return nil, errs.Config("sample_period", "must be positive, got %s", period)
	}
	file, err := os.Open(filepath.Join(dir, "labels.dat"))
	if err != nil {
		return nil, err
	}
	labels, err := ParseLabels(file)
	file.Close()
	if err != nil {
		return nil, err
	}

	instances := make([]int, 0, len(labels))
	for instance := range labels {
		instances = append(instances, instance)
	}
	sort.Ints(instances)

	channels := make([]ImportedChannel, 0, len(labels))
	for _, instance := range instances {
		label := labels[instance]
		meter := Meter{
			Building:     building,
			Instance:     instance,
			Label:        label,
			Site:         IsSiteLabel(label),
			SamplePeriod: period,
		}
		path := filepath.Join(dir, fmt.Sprintf("channel_%d.dat", instance))
		channel, err := os.Open(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		samples, err := ParseChannel(channel)
		channel.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if err := store.Put(meter, samples); err != nil {
			return nil, fmt.Errorf("put %s: %w", meter, err)
		}
		summary := stats.NewStreamStatistics()
		for _, sample := range samples {
			summary.Append(sample.Timestamp, sample.Value)
		}
		channels = append(channels, ImportedChannel{Meter: meter, Stats: summary})
	}
	return channels, nil
}
