package window

import (
	"container/heap"
	"fmt"
	"nilmprep/errs"
	"nilmprep/storage"
	"nilmprep/tree"
	"time"
)

const (
	startEvent = iota
	endEvent
)

// FindIntervals intersects the good sections of a group of meters, one
// slice of sections per meter, and returns the chronological spans where
// all of them were recording, each trimmed to a whole number of windows.
//
// Sections shorter than one window are ignored. Events are swept in time
// order with starts ahead of ends at the same instant; an interval opens
// whenever every meter is recording and closes at the next end event.
func FindIntervals(sections [][]storage.Section, config Config) ([]Interval, error) {
	return sweep(sections, config, nil)
}

// sweep reports a bad section under meter(i) when meter is set, and under
// its position otherwise.
func sweep(sections [][]storage.Section, config Config, meter func(int) storage.Meter) ([]Interval, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if len(sections) == 0 {
		return nil, errs.Config("meters", "no meters to intersect")
	}

	minDuration := config.SamplePeriod * time.Duration(config.WindowLength)
	events := tree.NewMinHeap(0)
	for index, meterSections := range sections {
		for _, section := range meterSections {
			if !section.End.After(section.Start) {
				bad := &errs.IntegrityError{
					Meter:  fmt.Sprintf("#%d", index),
					Start:  section.Start.UTC(),
					End:    section.End.UTC(),
					Reason: "good section does not end after it starts",
				}
				if meter != nil {
					bad.Meter = meter(index).String()
					bad.Building = meter(index).Building
				}
				return nil, bad
			}
			if section.Duration() < minDuration {
				continue
			}
			heap.Push(events, &tree.HeapItem{Key: section.Start.UTC().UnixNano(), Rank: startEvent, Value: index})
			heap.Push(events, &tree.HeapItem{Key: section.End.UTC().UnixNano(), Rank: endEvent, Value: index})
		}
	}

	intervals := make([]Interval, 0)
	total := 0
	overlap := 0
	open := false
	var start time.Time

	for events.Len() > 0 {
		if config.MaxWindows != NoLimit && total >= config.MaxWindows {
			break
		}
		event := heap.Pop(events).(*tree.HeapItem)
		timestamp := time.Unix(0, event.Key).UTC()

		if event.Rank == startEvent {
			overlap++
		} else {
			overlap--
			if open {
				open = false
				interval, ok := trimInterval(start, timestamp, config)
				if ok {
					if config.MaxWindows != NoLimit && total+interval.Windows > config.MaxWindows {
						interval = newInterval(start, config.MaxWindows-total, config)
					}
					total += interval.Windows
					intervals = append(intervals, interval)
				}
			}
		}
		if overlap == len(sections) && !open {
			open = true
			start = timestamp
		}
	}
	return intervals, nil
}

func trimInterval(start, end time.Time, config Config) (Interval, bool) {
	samples := int(end.Sub(start) / config.SamplePeriod)
	windows := config.WindowCount(samples)
	if windows <= 0 {
		return Interval{}, false
	}
	return newInterval(start, windows, config), true
}

func newInterval(start time.Time, windows int, config Config) Interval {
	samples := config.SpanSamples(windows)
	return Interval{
		Start:   start,
		End:     start.Add(time.Duration(samples) * config.SamplePeriod),
		Samples: samples,
		Windows: windows,
	}
}

// Finder resolves the good sections of meters through a MeterStore and
// intersects them.
type Finder struct {
	store  storage.MeterStore
	config Config
	bounds *storage.Section
}

func NewFinder(store storage.MeterStore, config Config) (*Finder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Finder{store: store, config: config}, nil
}

// SetBounds restricts every good section to [start, end).
func (finder *Finder) SetBounds(start, end time.Time) *Finder {
	finder.bounds = &storage.Section{Start: start.UTC(), End: end.UTC()}
	return finder
}

func (finder *Finder) Config() Config {
	return finder.config
}

func (finder *Finder) Find(meters []storage.Meter) ([]Interval, error) {
	sections, err := finder.Sections(meters)
	if err != nil {
		return nil, err
	}
	return sweep(sections, finder.config, func(i int) storage.Meter { return meters[i] })
}

// Sections returns the good sections of every meter, clipped to the bounds.
func (finder *Finder) Sections(meters []storage.Meter) ([][]storage.Section, error) {
	if len(meters) == 0 {
		return nil, errs.Config("meters", "no meters to intersect")
	}
	sections := make([][]storage.Section, len(meters))
	for i, meter := range meters {
		meterSections, err := finder.store.GoodSections(meter)
		if err != nil {
			return nil, fmt.Errorf("good sections of %s: %w", meter, err)
		}
		sections[i] = finder.clip(meterSections)
	}
	return sections, nil
}

func (finder *Finder) clip(sections []storage.Section) []storage.Section {
	if finder.bounds == nil {
		return sections
	}
	clipped := make([]storage.Section, 0, len(sections))
	for _, section := range sections {
		if section.Start.Before(finder.bounds.Start) {
			section.Start = finder.bounds.Start
		}
		if section.End.After(finder.bounds.End) {
			section.End = finder.bounds.End
		}
		if section.End.After(section.Start) {
			clipped = append(clipped, section)
		}
	}
	return clipped
}
